// Package pipeline contains the job handlers that make up the publishing
// pipeline: content generation, speech narration (with byte-bounded chunking
// and ordered concatenation), notification email, and standalone image
// uploads. Each handler satisfies queue.Handler and is registered against its
// queue by the worker binary.
package pipeline
