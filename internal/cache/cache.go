package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors returned by the cache package
var (
	// ErrNilClient is returned when a Cache is constructed without a Redis client.
	ErrNilClient = errors.New("redis client cannot be nil")

	// ErrNilLogger is returned when a Cache is constructed without a logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Cache is a thin invalidation-aware wrapper around a Redis client. Values
// are stored as JSON. Keys follow a colon-delimited namespace convention
// (e.g. "article:id:<id>", "article:query:<hash>") so that families of
// related entries can be removed together with DelPattern.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Cache backed by the provided Redis client.
func New(client *redis.Client, logger *slog.Logger) (*Cache, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &Cache{
		client: client,
		logger: logger.With(slog.String("component", "cache")),
	}, nil
}

// Get retrieves the value stored under key and unmarshals it into dest.
// It returns false with a nil error on a cache miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry is treated as a miss so callers recompute it.
		c.logger.WarnContext(ctx, "discarding unreadable cache entry",
			"key", key,
			"error", err)
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}

	return true, nil
}

// Set stores value under key as JSON. A zero ttl stores the entry without
// expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set %q: marshal value: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}

	return nil
}

// Del removes the given keys. Deleting keys that do not exist is a no-op,
// never an error.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}

	return nil
}

// DelPattern removes every key matching the given glob pattern ("*" wildcard)
// and returns the number of keys deleted. The pattern is anchored: it must
// match a whole key, not a substring. An empty match set is a no-op.
func (c *Cache) DelPattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("cache scan %q: %w", pattern, err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("cache del pattern %q: %w", pattern, err)
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.DebugContext(ctx, "invalidated cache pattern",
		"pattern", pattern,
		"deleted", deleted)

	return deleted, nil
}

// Clear flushes the entire cache database. It exists for test harnesses and
// must not be called by production workers.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Wrap is a read-through helper: it returns the cached value for key when
// present, otherwise it calls compute, stores the result under key with the
// given ttl, and returns it. A failure to store the computed value is logged
// but not returned; the computed value is still usable.
func Wrap[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		return cached, err
	}
	if hit {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "failed to store computed value in cache",
			"key", key,
			"error", err)
	}

	return value, nil
}
