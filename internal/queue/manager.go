package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/calliope-press/pipeline/internal/events"
	"github.com/google/uuid"
)

// Common errors returned by the Manager
var (
	// ErrUnavailable is returned synchronously by AddJob when no broker is
	// configured or reachable, so callers can fall back to running the work
	// inline.
	ErrUnavailable = errors.New("queue unavailable")

	// ErrNotInitialized is returned when the manager is used before Initialize.
	ErrNotInitialized = errors.New("queue manager is not initialized")

	// ErrShuttingDown is returned by AddJob once shutdown has begun.
	ErrShuttingDown = errors.New("queue manager is shutting down")
)

// Manager owns the queue handles, the default job options, and the worker
// lifecycle. It is constructed once at process start and passed explicitly to
// everything that enqueues jobs; there is no package-level singleton.
type Manager struct {
	broker   *Broker
	registry *Registry
	emitter  events.EventEmitter
	opts     JobOptions
	logger   *slog.Logger

	mu           sync.Mutex
	initialized  bool
	available    bool
	shuttingDown bool
	queues       map[Name]struct{}
	workers      []*Worker
}

// NewManager creates a Manager over the given broker. opts tunes the retry
// and retention policy shared by all queues.
func NewManager(broker *Broker, registry *Registry, emitter events.EventEmitter, opts JobOptions, log *slog.Logger) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.CompletedRetentionAge <= 0 {
		opts.CompletedRetentionAge = DefaultCompletedRetentionAge
	}
	if opts.CompletedRetentionCount <= 0 {
		opts.CompletedRetentionCount = DefaultCompletedRetentionCount
	}
	if opts.FailedRetentionAge <= 0 {
		opts.FailedRetentionAge = DefaultFailedRetentionAge
	}

	return &Manager{
		broker:   broker,
		registry: registry,
		emitter:  emitter,
		opts:     opts,
		logger:   log.With(slog.String("component", "queue_manager")),
		queues:   make(map[Name]struct{}),
	}
}

// Initialize verifies the broker connection and creates every known queue.
// It is idempotent: a second call logs a warning and does nothing. When the
// broker is unconfigured or unreachable it does NOT return an error; instead
// the manager marks itself unavailable and every subsequent AddJob fails
// synchronously with ErrUnavailable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		m.logger.Warn("queue manager already initialized, ignoring")
		return nil
	}
	m.initialized = true

	if !m.broker.Configured() {
		m.available = false
		m.logger.Warn("no broker configured, queuing disabled; callers must run jobs synchronously")
		return nil
	}

	if err := m.broker.Ping(ctx); err != nil {
		m.available = false
		m.logger.Warn("broker unreachable, queuing disabled; callers must run jobs synchronously",
			"error", err)
		return nil
	}

	for _, name := range Names {
		if err := m.createQueueLocked(ctx, name); err != nil {
			return err
		}
	}

	m.available = true
	m.logger.Info("queue manager initialized", "queues", len(m.queues))
	return nil
}

// Available reports whether jobs can currently be enqueued.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available && !m.shuttingDown
}

// CreateQueue registers a queue with the default job options. Queues created
// by Initialize make explicit calls unnecessary in normal operation; the
// method exists so tests can build managers over a subset of queues.
func (m *Manager) CreateQueue(ctx context.Context, name Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if !m.available {
		return ErrUnavailable
	}
	return m.createQueueLocked(ctx, name)
}

func (m *Manager) createQueueLocked(ctx context.Context, name Name) error {
	if _, err := newPayloadFor(name); err != nil {
		return err
	}
	if _, exists := m.queues[name]; exists {
		return nil
	}
	if err := m.broker.EnsureQueue(ctx, name); err != nil {
		return err
	}
	m.queues[name] = struct{}{}
	return nil
}

// AddJob validates and enqueues a payload on the named queue, returning the
// persisted job envelope. It fails synchronously with ErrUnavailable when no
// broker is usable; enqueueing is fire-and-forget in every respect except
// this one.
func (m *Manager) AddJob(ctx context.Context, name Name, payload Payload) (*Job, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if m.shuttingDown {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if !m.available {
		m.mu.Unlock()
		return nil, ErrUnavailable
	}
	maxAttempts := m.opts.MaxAttempts
	m.mu.Unlock()

	want, err := newPayloadFor(name)
	if err != nil {
		return nil, err
	}
	// Each queue carries exactly one payload type; catching a mismatch here
	// fails the caller synchronously instead of poisoning the consumer's
	// decode step.
	if reflect.TypeOf(payload) != reflect.TypeOf(want) {
		return nil, fmt.Errorf("%w: %T is not the payload type for queue %q", ErrInvalidPayload, payload, name)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.New(),
		Queue:       name,
		Payload:     data,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.broker.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Debug("job enqueued", "job_id", job.ID, "queue", name)
	return job, nil
}

// StartWorkers launches one worker per registered queue. Workers keep
// running until Shutdown.
func (m *Manager) StartWorkers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if !m.available {
		return ErrUnavailable
	}

	for _, reg := range m.registry.registrations() {
		if _, exists := m.queues[reg.queue]; !exists {
			if err := m.createQueueLocked(ctx, reg.queue); err != nil {
				return err
			}
		}
		worker := newWorker(m.broker, reg, m.opts, m.emitter, m.logger)
		worker.Start(ctx)
		m.workers = append(m.workers, worker)
	}

	return nil
}

// Shutdown stops accepting new jobs, drains every worker (waiting for its
// in-flight job to finish), and then closes the broker. Workers stop before
// queues close so no worker polls a closed connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = true
	workers := m.workers
	m.workers = nil
	m.mu.Unlock()

	m.logger.Info("shutting down queue manager", "workers", len(workers))

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted with workers still draining: %w", ctx.Err())
	}

	if err := m.broker.Close(); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}

	m.logger.Info("queue manager shut down")
	return nil
}
