package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the Registry
var (
	// ErrAlreadyRegistered is returned when a second handler is bound to a
	// queue. The system runs exactly one worker per queue.
	ErrAlreadyRegistered = errors.New("queue already has a registered handler")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// Handler is the processing function bound to a queue. It receives the leased
// job and returns nil to ack it or an error to trigger the retry policy.
// Errors wrapping ErrInvalidPayload fail the job immediately without retry.
type Handler func(ctx context.Context, job *Job) error

// registration binds one queue to its handler and concurrency ceiling.
type registration struct {
	queue       Name
	concurrency int
	handler     Handler
}

// Registry binds one worker per queue name to a named processing function
// with an independently tunable concurrency limit. It carries no business
// logic; dispatch and observability are its entire job.
type Registry struct {
	mu      sync.Mutex
	entries map[Name]registration
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[Name]registration),
		logger:  logger.With(slog.String("component", "worker_registry")),
	}
}

// Register binds handler to queue with the given concurrency ceiling. A
// concurrency of zero or less falls back to the queue's default. Registering
// the same queue twice is an error.
func (r *Registry) Register(queue Name, concurrency int, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if _, err := newPayloadFor(queue); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[queue]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, queue)
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency(queue)
	}

	r.entries[queue] = registration{
		queue:       queue,
		concurrency: concurrency,
		handler:     handler,
	}

	r.logger.Debug("registered queue handler",
		"queue", queue,
		"concurrency", concurrency)

	return nil
}

// registrations returns a snapshot of all bindings.
func (r *Registry) registrations() []registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	return out
}
