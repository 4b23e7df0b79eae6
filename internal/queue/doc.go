// Package queue implements the durable job pipeline runtime: a thin broker
// adapter over Redis streams, a queue manager owning default job options and
// lifecycle, and a worker registry binding one concurrency-limited worker per
// queue.
//
// Delivery is at-least-once. Failed jobs are retried with exponential backoff
// up to the per-queue attempt bound, except validation failures, which fail
// immediately. When no broker is configured the manager initializes in an
// unavailable state and AddJob fails synchronously, letting callers fall back
// to running the work inline.
package queue
