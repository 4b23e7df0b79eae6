package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/calliope-press/pipeline/internal/config"
	"github.com/redis/go-redis/v9"
)

// consumerGroup is the single consumer group all workers of a queue share.
// The group guarantees at most one active lease per job.
const consumerGroup = "workers"

// keyPrefix namespaces every broker key in Redis.
const keyPrefix = "calliope:jobs:"

// Broker is a thin adapter over the Redis structures backing the queues: one
// stream per queue for ready jobs, plus sorted sets for scheduled retries and
// for completed/failed job retention.
type Broker struct {
	client *redis.Client
}

// NewBroker creates a Broker from the Redis configuration. An empty address
// yields an unconfigured broker; the queue manager detects this during
// initialization and degrades to the unavailable mode.
func NewBroker(cfg config.RedisConfig) *Broker {
	if cfg.Addr == "" {
		return &Broker{}
	}

	return &Broker{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NewBrokerWithClient wraps an existing Redis client. Used by tests.
func NewBrokerWithClient(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Configured reports whether a Redis address was provided at all.
func (b *Broker) Configured() bool {
	return b.client != nil
}

// Ping verifies the broker connection.
func (b *Broker) Ping(ctx context.Context) error {
	if b.client == nil {
		return errors.New("broker is not configured")
	}
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (b *Broker) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func streamKey(queue Name) string    { return keyPrefix + string(queue) }
func retryKey(queue Name) string     { return keyPrefix + string(queue) + ":retry" }
func completedKey(queue Name) string { return keyPrefix + string(queue) + ":completed" }
func failedKey(queue Name) string    { return keyPrefix + string(queue) + ":failed" }

// EnsureQueue creates the stream and consumer group for a queue. Creating a
// group that already exists is tolerated so initialization stays idempotent.
func (b *Broker) EnsureQueue(ctx context.Context, queue Name) error {
	err := b.client.XGroupCreateMkStream(ctx, streamKey(queue), consumerGroup, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create queue %s: %w", queue, err)
	}
	return nil
}

// isBusyGroupErr reports whether err is Redis's "group already exists" reply.
func isBusyGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Enqueue appends a job to its queue's stream.
func (b *Broker) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(job.Queue),
		Values: map[string]interface{}{"job": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job %s on %s: %w", job.ID, job.Queue, err)
	}

	return nil
}

// leasedJob pairs a decoded job with the stream message ID of its lease.
type leasedJob struct {
	job   *Job
	msgID string
}

// ReadOne blocks for up to block waiting for the next job on the queue,
// leased to the named consumer. It returns nil when the wait times out.
func (b *Broker) ReadOne(ctx context.Context, queue Name, consumer string, block time.Duration) (*leasedJob, error) {
	entries, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{streamKey(queue), ">"},
		Block:    block,
		Count:    1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", queue, err)
	}

	for _, stream := range entries {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["job"].(string)
			if !ok {
				// Malformed entry: ack it away so it does not wedge the group.
				_ = b.Ack(ctx, queue, msg.ID)
				return nil, fmt.Errorf("%w: malformed stream entry %s", ErrInvalidPayload, msg.ID)
			}

			var job Job
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				_ = b.Ack(ctx, queue, msg.ID)
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}

			return &leasedJob{job: &job, msgID: msg.ID}, nil
		}
	}

	return nil, nil
}

// Ack acknowledges and removes a leased message from the queue's stream.
func (b *Broker) Ack(ctx context.Context, queue Name, msgID string) error {
	if err := b.client.XAck(ctx, streamKey(queue), consumerGroup, msgID).Err(); err != nil {
		return fmt.Errorf("ack %s on %s: %w", msgID, queue, err)
	}
	_ = b.client.XDel(ctx, streamKey(queue), msgID).Err()
	return nil
}

// ScheduleRetry parks a job in the queue's retry set until dueAt.
func (b *Broker) ScheduleRetry(ctx context.Context, job *Job, dueAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := b.client.ZAdd(ctx, retryKey(job.Queue), redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("schedule retry for %s: %w", job.ID, err)
	}

	return nil
}

// MoveDueRetries re-enqueues every retry whose due time has passed and
// returns how many were moved.
func (b *Broker) MoveDueRetries(ctx context.Context, queue Name, now time.Time) (int, error) {
	members, err := b.client.ZRangeByScore(ctx, retryKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 50,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("scan retries for %s: %w", queue, err)
	}

	moved := 0
	for _, raw := range members {
		if err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(queue),
			Values: map[string]interface{}{"job": raw},
		}).Err(); err != nil {
			return moved, fmt.Errorf("re-enqueue retry on %s: %w", queue, err)
		}
		if err := b.client.ZRem(ctx, retryKey(queue), raw).Err(); err != nil {
			return moved, fmt.Errorf("clear retry on %s: %w", queue, err)
		}
		moved++
	}

	return moved, nil
}

// RecordCompleted stores a completed job for inspection and trims the
// retention set by both age and count.
func (b *Broker) RecordCompleted(ctx context.Context, job *Job, opts JobOptions, now time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	key := completedKey(job.Queue)
	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: string(data)})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(now.Add(-opts.CompletedRetentionAge).Unix(), 10))
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-opts.CompletedRetentionCount-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record completed job %s: %w", job.ID, err)
	}

	return nil
}

// RecordFailed stores a permanently failed job for post-mortem inspection
// and trims the retention set by age.
func (b *Broker) RecordFailed(ctx context.Context, job *Job, opts JobOptions, now time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	key := failedKey(job.Queue)
	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: string(data)})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(now.Add(-opts.FailedRetentionAge).Unix(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failed job %s: %w", job.ID, err)
	}

	return nil
}
