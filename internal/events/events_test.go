package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobEvent(t *testing.T) {
	jobID := uuid.New()

	event := NewJobEvent(JobCompleted, jobID, "generation", 1, 250*time.Millisecond, nil)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, JobCompleted, event.Type)
	assert.Equal(t, jobID, event.JobID)
	assert.Equal(t, "generation", event.Queue)
	assert.Equal(t, 1, event.Attempt)
	assert.Equal(t, 250*time.Millisecond, event.Duration)
	assert.Empty(t, event.Error)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestNewJobEventWithError(t *testing.T) {
	event := NewJobEvent(JobFailed, uuid.New(), "narration", 3, time.Second, errors.New("synthesis failed"))

	assert.Equal(t, JobFailed, event.Type)
	assert.Equal(t, "synthesis failed", event.Error)
}

// recordingHandler captures every event it receives.
type recordingHandler struct {
	events []*JobEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *JobEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		event := NewJobEvent(JobCompleted, uuid.New(), "email", 1, time.Millisecond, nil)

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("event reaches every registered handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		first := &recordingHandler{}
		second := &recordingHandler{}
		emitter.RegisterHandler(first)
		emitter.RegisterHandler(second)

		event := NewJobEvent(JobRetrying, uuid.New(), "generation", 1, time.Millisecond,
			errors.New("transient"))
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		require.Len(t, first.events, 1)
		require.Len(t, second.events, 1)
		assert.Equal(t, event.ID, first.events[0].ID)
	})

	t.Run("handler error does not stop later handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failing := &recordingHandler{err: errors.New("handler broken")}
		healthy := &recordingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(healthy)

		event := NewJobEvent(JobCompleted, uuid.New(), "image_upload", 1, time.Millisecond, nil)
		err := emitter.EmitEvent(context.Background(), event)

		assert.EqualError(t, err, "handler broken")
		assert.Len(t, healthy.events, 1, "remaining handlers must still receive the event")
	})
}

func TestLoggingHandlerNeverFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewLoggingHandler(logger)

	for _, eventType := range []JobEventType{JobCompleted, JobRetrying, JobFailed, "unknown"} {
		event := NewJobEvent(eventType, uuid.New(), "generation", 2, time.Second,
			errors.New("some failure"))
		assert.NoError(t, handler.HandleEvent(context.Background(), event))
	}
}
