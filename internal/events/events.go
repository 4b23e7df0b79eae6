package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobEventType classifies a job lifecycle event.
type JobEventType string

// Lifecycle event types emitted by the queue workers.
const (
	// JobCompleted is emitted after a job's handler returns successfully.
	JobCompleted JobEventType = "job_completed"

	// JobRetrying is emitted when a failed job is scheduled for another attempt.
	JobRetrying JobEventType = "job_retrying"

	// JobFailed is emitted when a job fails permanently.
	JobFailed JobEventType = "job_failed"
)

// JobEvent describes the outcome of one job execution attempt. Events are
// consumed only for logging and observability; no business logic may hang
// off them.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type classifies the outcome
	Type JobEventType `json:"type"`

	// JobID identifies the job the event refers to
	JobID uuid.UUID `json:"job_id"`

	// Queue names the queue the job ran on
	Queue string `json:"queue"`

	// Attempt is the 1-based execution attempt the event refers to
	Attempt int `json:"attempt"`

	// Duration is how long the attempt ran
	Duration time.Duration `json:"duration"`

	// Error holds the failure message for retrying/failed events
	Error string `json:"error,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewJobEvent creates a JobEvent for the given outcome.
func NewJobEvent(eventType JobEventType, jobID uuid.UUID, queue string, attempt int, duration time.Duration, err error) *JobEvent {
	event := &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		Queue:     queue,
		Attempt:   attempt,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows workers to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
