// Package cache provides the key/pattern based cache-invalidation contract
// shared by the pipeline workers and the API layer. It wraps a Redis client
// with JSON serialization, glob-pattern invalidation, and a generic
// read-through helper.
package cache
