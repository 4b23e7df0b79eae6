package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBroker(t *testing.T) (*Broker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewBrokerWithClient(client), mr
}

func testJob(t *testing.T, queue Name) *Job {
	t.Helper()

	payload, err := json.Marshal(EmailPayload{To: "a@b.c", Subject: "s", Text: "t"})
	require.NoError(t, err)

	return &Job{
		ID:          uuid.New(),
		Queue:       queue,
		Payload:     payload,
		MaxAttempts: DefaultMaxAttempts,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestBrokerEnqueueReadAck(t *testing.T) {
	broker, _ := setupTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.EnsureQueue(ctx, QueueEmail))

	job := testJob(t, QueueEmail)
	require.NoError(t, broker.Enqueue(ctx, job))

	leased, err := broker.ReadOne(ctx, QueueEmail, "email-0", 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, job.ID, leased.job.ID)
	assert.Equal(t, QueueEmail, leased.job.Queue)

	require.NoError(t, broker.Ack(ctx, QueueEmail, leased.msgID))
}

func TestBrokerEnsureQueueIsIdempotent(t *testing.T) {
	broker, _ := setupTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.EnsureQueue(ctx, QueueGeneration))
	assert.NoError(t, broker.EnsureQueue(ctx, QueueGeneration),
		"creating an existing queue must not be an error")
}

func TestBrokerScheduleAndMoveDueRetries(t *testing.T) {
	broker, _ := setupTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.EnsureQueue(ctx, QueueEmail))

	job := testJob(t, QueueEmail)
	job.Attempt = 1

	// A retry due in the future must stay parked.
	require.NoError(t, broker.ScheduleRetry(ctx, job, time.Now().Add(time.Hour)))
	moved, err := broker.MoveDueRetries(ctx, QueueEmail, time.Now())
	require.NoError(t, err)
	assert.Zero(t, moved)

	// Once due, it is re-enqueued exactly once.
	moved, err = broker.MoveDueRetries(ctx, QueueEmail, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	leased, err := broker.ReadOne(ctx, QueueEmail, "email-0", 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, job.ID, leased.job.ID)
	assert.Equal(t, 1, leased.job.Attempt, "attempt counter must survive the retry round-trip")

	moved, err = broker.MoveDueRetries(ctx, QueueEmail, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, moved, "a moved retry must be removed from the retry set")
}

func TestBrokerRecordCompletedTrimsByCount(t *testing.T) {
	broker, mr := setupTestBroker(t)
	ctx := context.Background()

	opts := DefaultJobOptions()
	opts.CompletedRetentionCount = 3

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		job := testJob(t, QueueEmail)
		require.NoError(t, broker.RecordCompleted(ctx, job, opts, now.Add(time.Duration(i)*time.Second)))
	}

	members, err := mr.ZMembers(completedKey(QueueEmail))
	require.NoError(t, err)
	assert.Len(t, members, 3, "completed retention must be bounded by count")
}

func TestBrokerRecordFailedTrimsByAge(t *testing.T) {
	broker, mr := setupTestBroker(t)
	ctx := context.Background()

	opts := DefaultJobOptions()

	old := testJob(t, QueueEmail)
	require.NoError(t, broker.RecordFailed(ctx, old, opts, time.Now().Add(-48*time.Hour)))

	fresh := testJob(t, QueueEmail)
	require.NoError(t, broker.RecordFailed(ctx, fresh, opts, time.Now()))

	members, err := mr.ZMembers(failedKey(QueueEmail))
	require.NoError(t, err)
	assert.Len(t, members, 1, "failed jobs older than the retention age must be trimmed")
}
