package queue

import "time"

// Default job options applied when a queue is created. Attempts and backoff
// mirror the broker defaults the API layer relies on; retention keeps enough
// history for post-mortem inspection without letting the broker grow
// unbounded.
const (
	// DefaultMaxAttempts bounds the number of executions per job.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the starting delay of the exponential retry curve.
	DefaultBackoffBase = 2 * time.Second

	// DefaultCompletedRetentionAge bounds how long completed jobs are kept.
	DefaultCompletedRetentionAge = time.Hour

	// DefaultCompletedRetentionCount bounds how many completed jobs are kept.
	DefaultCompletedRetentionCount = 100

	// DefaultFailedRetentionAge bounds how long permanently failed jobs are
	// kept for post-mortem inspection.
	DefaultFailedRetentionAge = 24 * time.Hour
)

// Per-queue concurrency ceilings. These reflect the relative cost and
// rate-limit sensitivity of each queue's downstream collaborator, not an
// absolute platform limit; they are the system's sole backpressure mechanism.
const (
	DefaultGenerationConcurrency  = 2
	DefaultNarrationConcurrency   = 2
	DefaultEmailConcurrency       = 5
	DefaultImageUploadConcurrency = 3
)

// JobOptions holds the retry and retention policy of one queue.
type JobOptions struct {
	MaxAttempts             int
	BackoffBase             time.Duration
	CompletedRetentionAge   time.Duration
	CompletedRetentionCount int
	FailedRetentionAge      time.Duration
}

// DefaultJobOptions returns the JobOptions every queue starts from.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		MaxAttempts:             DefaultMaxAttempts,
		BackoffBase:             DefaultBackoffBase,
		CompletedRetentionAge:   DefaultCompletedRetentionAge,
		CompletedRetentionCount: DefaultCompletedRetentionCount,
		FailedRetentionAge:      DefaultFailedRetentionAge,
	}
}

// DefaultConcurrency returns the worker concurrency ceiling for a queue.
func DefaultConcurrency(queue Name) int {
	switch queue {
	case QueueGeneration:
		return DefaultGenerationConcurrency
	case QueueNarration:
		return DefaultNarrationConcurrency
	case QueueEmail:
		return DefaultEmailConcurrency
	case QueueImageUpload:
		return DefaultImageUploadConcurrency
	default:
		return 1
	}
}
