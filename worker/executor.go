// Package worker provides the job execution engine. An Executor runs a
// single job through middleware and its registered handler under a
// deadline, then applies the retry policy. A Dispatcher drives the
// periodic tick: advancing recurring schedules and fanning due jobs out
// to the executor under the global concurrency cap.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reverb-labs/tempo/backoff"
	"github.com/reverb-labs/tempo/event"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/middleware"
)

// Executor runs a single job through middleware and the registered handler,
// then handles retry logic, state updates, and lifecycle events.
type Executor struct {
	registry *job.Registry
	store    job.Store
	bus      *event.Bus
	backoff  backoff.Strategy
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
// A nil backoff strategy means each job's own RetryDelay is honored.
func NewExecutor(
	registry *job.Registry,
	store job.Store,
	bus *event.Bus,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
		bus:      bus,
		backoff:  bo,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a job to one outcome. The attempt counter is incremented
// and the job marked running before the handler is resolved, so a missing
// handler burns an attempt like any other failure.
//
// On success: marks completed, emits JobCompleted.
// On failure with retries remaining: marks failed, emits JobFailed, then
// returns the job to pending with its retry delay applied and emits
// JobRetried.
// On failure with retries exhausted: marks failed, emits JobFailed.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	attempts, err := e.store.IncrementAttempts(ctx, j.ID)
	if err != nil {
		e.logger.Error("failed to increment job attempts",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	j.Attempts = attempts

	now := time.Now().UTC()
	if updateErr := e.store.UpdateJobStatus(ctx, j.ID, job.StatusRunning, ""); updateErr != nil {
		e.logger.Error("failed to mark job running",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	j.Status = job.StatusRunning
	if j.ExecutedAt == nil {
		j.ExecutedAt = &now
	}

	e.bus.Publish(event.Event{Kind: event.KindJobStarted, Job: j})

	handler, ok := e.registry.Resolve(j.Name)
	if !ok {
		return e.handleFailure(ctx, j, fmt.Errorf("no handler registered for job %q", j.Name))
	}

	out, runErr := e.run(ctx, j, handler)
	if runErr != nil {
		return e.handleFailure(ctx, j, runErr)
	}

	return e.handleSuccess(ctx, j, out)
}

// run invokes the handler through the middleware chain, racing it against
// the job's timeout. On timeout the handler goroutine is cancelled and a
// synthetic failure is returned; the goroutine may linger until it
// observes the cancellation.
func (e *Executor) run(ctx context.Context, j *job.Job, handler job.HandlerFunc) (json.RawMessage, error) {
	terminal := func(ctx context.Context) (json.RawMessage, error) {
		return handler(ctx, j)
	}

	if j.Timeout <= 0 {
		return e.mw(ctx, j, terminal)
	}

	runCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	type outcome struct {
		data json.RawMessage
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		data, err := e.mw(runCtx, j, terminal)
		done <- outcome{data: data, err: err}
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("timed out after %s", j.Timeout)
	}
}

func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, out json.RawMessage) error {
	now := time.Now().UTC()

	if updateErr := e.store.UpdateJobStatus(ctx, j.ID, job.StatusCompleted, ""); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	j.Status = job.StatusCompleted
	j.CompletedAt = &now
	j.ErrorMessage = ""

	e.bus.Publish(event.Event{
		Kind:   event.KindJobCompleted,
		Job:    j,
		Result: &job.Result{Success: true, Data: out},
	})
	return nil
}

// handleFailure records the failure, then either reschedules the job for
// a retry or leaves it failed when the budget is spent.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	j.ErrorMessage = handlerErr.Error()

	if updateErr := e.store.UpdateJobStatus(ctx, j.ID, job.StatusFailed, j.ErrorMessage); updateErr != nil {
		e.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	j.Status = job.StatusFailed

	result := &job.Result{Success: false, Error: j.ErrorMessage}
	e.bus.Publish(event.Event{Kind: event.KindJobFailed, Job: j, Result: result})

	if j.Attempts > j.MaxRetries {
		e.logger.Warn("job failed after exhausting retries",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.Int("attempts", j.Attempts),
			slog.String("error", j.ErrorMessage),
		)
		return handlerErr
	}

	return e.scheduleRetry(ctx, j, result, handlerErr)
}

// scheduleRetry returns the job to pending with its retry delay applied.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, result *job.Result, handlerErr error) error {
	delay := j.RetryDelay
	if e.backoff != nil {
		delay = e.backoff.Delay(j.Attempts)
	}
	nextRunAt := time.Now().UTC().Add(delay)

	if updateErr := e.store.UpdateJobStatus(ctx, j.ID, job.StatusPending, j.ErrorMessage); updateErr != nil {
		e.logger.Error("failed to return job to pending for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	if reschedErr := e.store.RescheduleJob(ctx, j.ID, nextRunAt); reschedErr != nil {
		e.logger.Error("failed to reschedule job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", reschedErr.Error()),
		)
		return reschedErr
	}
	j.Status = job.StatusPending
	j.ScheduledAt = nextRunAt

	e.bus.Publish(event.Event{Kind: event.KindJobRetried, Job: j, Result: result})

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s retry %d/%d: %w", j.Name, j.Attempts, j.MaxRetries, handlerErr)
}
