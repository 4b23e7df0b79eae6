// Package events carries job lifecycle events from the queue workers to
// observability consumers. Workers emit a JobEvent for every completed,
// retried, or permanently failed execution attempt; handlers registered on
// the emitter receive them. The only production consumer is a structured-log
// handler; no business logic may hang off these events.
package events
