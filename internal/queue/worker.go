package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calliope-press/pipeline/internal/events"
	"github.com/calliope-press/pipeline/internal/platform/logger"
)

// pollBlock is how long one XREADGROUP call waits before the worker loop
// re-checks for shutdown.
const pollBlock = 5 * time.Second

// retryScanInterval is how often the retry scheduler looks for due retries.
const retryScanInterval = time.Second

// Worker drains one queue. It runs a fixed pool of goroutines (the queue's
// concurrency ceiling), each of which leases at most one job at a time, so
// admission control falls directly out of the pool size. A separate goroutine
// moves due retries back onto the stream.
type Worker struct {
	broker  *Broker
	queue   Name
	handler Handler

	concurrency int
	opts        JobOptions
	block       time.Duration

	emitter events.EventEmitter
	logger  *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// newWorker wires a Worker for one registry entry.
func newWorker(broker *Broker, reg registration, opts JobOptions, emitter events.EventEmitter, log *slog.Logger) *Worker {
	return &Worker{
		broker:      broker,
		queue:       reg.queue,
		handler:     reg.handler,
		concurrency: reg.concurrency,
		opts:        opts,
		block:       pollBlock,
		emitter:     emitter,
		logger: log.With(
			slog.String("component", "worker"),
			slog.String("queue", string(reg.queue))),
	}
}

// Start launches the worker pool and the retry scheduler.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	w.wg.Add(1)
	go w.scheduleRetries(ctx)

	w.logger.Info("worker started", "concurrency", w.concurrency)
}

// Stop signals the worker to stop pulling jobs and waits for every in-flight
// job to finish. Jobs are never interrupted mid-execution.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// run is one worker goroutine: lease a job, execute it, settle the outcome,
// repeat until shutdown.
func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()

	consumer := fmt.Sprintf("%s-%d", w.queue, id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		leased, err := w.broker.ReadOne(ctx, w.queue, consumer, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to read from queue", "error", err)
			// Back off briefly so a broken broker does not spin the loop.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if leased == nil {
			continue
		}

		w.process(ctx, leased)
	}
}

// process executes one leased job and settles its outcome with the broker.
func (w *Worker) process(ctx context.Context, leased *leasedJob) {
	job := leased.job
	job.Status = StatusActive
	attempt := job.Attempt + 1

	jobLogger := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", attempt))

	// The handler context is detached from the shutdown signal: an in-flight
	// job runs to completion (or to its own per-call timeouts), never to a
	// forced interruption.
	handlerCtx := logger.WithLogger(context.WithoutCancel(ctx), jobLogger)

	jobLogger.Info("processing job")
	start := time.Now()
	err := w.handler(handlerCtx, job)
	duration := time.Since(start)

	settleCtx := context.WithoutCancel(ctx)
	if err == nil {
		w.settleCompleted(settleCtx, leased, attempt, duration)
		return
	}
	w.settleFailed(settleCtx, leased, attempt, duration, err)
}

// settleCompleted acks the job and records it in the completed retention set.
func (w *Worker) settleCompleted(ctx context.Context, leased *leasedJob, attempt int, duration time.Duration) {
	job := leased.job
	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.Attempt = attempt
	job.CompletedAt = &now

	if err := w.broker.Ack(ctx, w.queue, leased.msgID); err != nil {
		w.logger.Error("failed to ack completed job", "job_id", job.ID, "error", err)
	}
	if err := w.broker.RecordCompleted(ctx, job, w.opts, now); err != nil {
		w.logger.Warn("failed to record completed job", "job_id", job.ID, "error", err)
	}

	w.emit(ctx, events.NewJobEvent(events.JobCompleted, job.ID, string(w.queue), attempt, duration, nil))
}

// settleFailed acks the lease and either schedules a retry or records the job
// as permanently failed. Validation errors are never retried.
func (w *Worker) settleFailed(ctx context.Context, leased *leasedJob, attempt int, duration time.Duration, execErr error) {
	job := leased.job
	job.Attempt = attempt

	if err := w.broker.Ack(ctx, w.queue, leased.msgID); err != nil {
		w.logger.Error("failed to ack failed job", "job_id", job.ID, "error", err)
	}

	retryable := !errors.Is(execErr, ErrInvalidPayload) && attempt < job.MaxAttempts
	if retryable {
		job.Status = StatusQueued
		delay := RetryDelay(w.opts.BackoffBase, attempt)
		if err := w.broker.ScheduleRetry(ctx, job, time.Now().Add(delay)); err != nil {
			w.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
		}
		w.emit(ctx, events.NewJobEvent(events.JobRetrying, job.ID, string(w.queue), attempt, duration, execErr))
		return
	}

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	if err := w.broker.RecordFailed(ctx, job, w.opts, now); err != nil {
		w.logger.Error("failed to record failed job", "job_id", job.ID, "error", err)
	}
	w.emit(ctx, events.NewJobEvent(events.JobFailed, job.ID, string(w.queue), attempt, duration, execErr))
}

// scheduleRetries periodically moves due retries back onto the stream.
func (w *Worker) scheduleRetries(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(retryScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moved, err := w.broker.MoveDueRetries(ctx, w.queue, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Error("failed to move due retries", "error", err)
				}
				continue
			}
			if moved > 0 {
				w.logger.Debug("re-enqueued due retries", "count", moved)
			}
		}
	}
}

// emit publishes a lifecycle event; emission failures only get logged.
func (w *Worker) emit(ctx context.Context, event *events.JobEvent) {
	if w.emitter == nil {
		return
	}
	if err := w.emitter.EmitEvent(ctx, event); err != nil {
		w.logger.Warn("failed to emit job event", "event_type", event.Type, "error", err)
	}
}
