// Package engine wires all tempo subsystems together. It creates the job
// registry, event bus, middleware chain, recurring advancer, and
// dispatcher, and provides the scheduling operations.
//
// This package exists to break the import cycle: the root tempo package
// defines Entity (imported by job and recurring) and so cannot import
// those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/backoff"
	"github.com/reverb-labs/tempo/event"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	mw "github.com/reverb-labs/tempo/middleware"
	"github.com/reverb-labs/tempo/recurring"
	"github.com/reverb-labs/tempo/scope"
	"github.com/reverb-labs/tempo/worker"
)

// Engine wraps a Scheduler with the wired subsystems.
// Use Build() to create one from a Scheduler.
type Engine struct {
	s          *tempo.Scheduler
	registry   *job.Registry
	jobStore   job.Store
	schedStore recurring.Store
	bus        *event.Bus
	bo         backoff.Strategy
	advancer   *recurring.Advancer
	dispatcher *worker.Dispatcher
	mws        []mw.Middleware
	logger     *slog.Logger

	// Next-run calculation, swappable via WithFullCron.
	next     recurring.NextFunc
	validate func(string) error

	// Optional dispatch throttle.
	limiter *rate.Limiter

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu          sync.Mutex
	initialized bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMiddleware adds middleware to the engine's chain, after the
// built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry delay strategy. If not set, each job's own
// RetryDelay is honored.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithFullCron switches recurring schedules to the full cron evaluator,
// which handles arbitrary five-field expressions instead of the small set
// of canonical patterns the default calculator recognizes.
func WithFullCron() Option {
	return func(eng *Engine) {
		eng.next = recurring.NextFull
		eng.validate = recurring.ValidateFull
	}
}

// WithRateLimit throttles how fast jobs may be launched per second,
// independent of the concurrency cap.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(eng *Engine) {
		eng.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Scheduler.
// The Scheduler's store must implement both job.Store and recurring.Store
// (any store.Store backend does).
func Build(s *tempo.Scheduler, opts ...Option) (*Engine, error) {
	logger := s.Logger()
	st := s.Store()

	if st == nil {
		return nil, tempo.ErrNoStore
	}

	js, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("tempo: store does not implement job.Store")
	}
	rs, ok := st.(recurring.Store)
	if !ok {
		return nil, fmt.Errorf("tempo: store does not implement recurring.Store")
	}

	eng := &Engine{
		s:          s,
		registry:   job.NewRegistry(),
		jobStore:   js,
		schedStore: rs,
		bus:        event.NewBus(logger),
		logger:     logger,
		next:       recurring.Next,
		validate:   recurring.Validate,
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := s.Config()

	tickSched, err := cron.ParseStandard(config.TickSchedule)
	if err != nil {
		return nil, fmt.Errorf("tempo: invalid tick schedule %q: %w", config.TickSchedule, err)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/reverb-labs/tempo")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/reverb-labs/tempo")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → scope.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
	}
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, js, eng.bus, eng.bo, logger, allMws...)
	eng.advancer = recurring.NewAdvancer(rs, eng.spawnOccurrence, eng.next, logger)

	dispatcherOpts := []worker.DispatcherOption{
		worker.WithMaxConcurrent(config.MaxConcurrentJobs),
	}
	if eng.limiter != nil {
		dispatcherOpts = append(dispatcherOpts, worker.WithRateLimiter(eng.limiter))
	}
	eng.dispatcher = worker.NewDispatcher(js, executor, eng.advancer, tickSched, logger, dispatcherOpts...)

	s.SetDriver(eng.dispatcher)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterJobHandler registers a raw handler for the given job name,
// replacing any previous registration.
func (eng *Engine) RegisterJobHandler(name string, h job.HandlerFunc) {
	eng.registry.Register(name, h)
}

// Subscribe registers fn for lifecycle events of the given kind.
func (eng *Engine) Subscribe(kind event.Kind, fn event.Handler) *event.Subscription {
	return eng.bus.Subscribe(kind, fn)
}

// Initialize starts the dispatch tick loop. Calling Initialize on an
// already-initialized engine is a no-op.
func (eng *Engine) Initialize(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.initialized {
		return nil
	}

	if eng.s.Store() != nil {
		if err := eng.s.Store().Ping(ctx); err != nil {
			return fmt.Errorf("tempo: store ping: %w", err)
		}
	}

	if err := eng.s.Start(ctx); err != nil {
		return err
	}
	eng.initialized = true

	eng.logger.Info("engine initialized",
		slog.String("tick_schedule", eng.s.Config().TickSchedule),
		slog.Int("max_concurrent_jobs", eng.s.Config().MaxConcurrentJobs),
	)
	return nil
}

// Shutdown stops the tick loop, waits up to the configured shutdown
// timeout for in-flight jobs, and closes the store. Calling Shutdown on an
// engine that was never initialized is a no-op.
func (eng *Engine) Shutdown(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if !eng.initialized {
		return nil
	}
	eng.initialized = false

	if timeout := eng.s.Config().ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return eng.s.Stop(ctx)
}

// guard returns ErrNotInitialized unless Initialize has completed.
func (eng *Engine) guard() error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.initialized {
		return tempo.ErrNotInitialized
	}
	return nil
}

// Tick runs one dispatch cycle immediately, outside the periodic loop.
func (eng *Engine) Tick(ctx context.Context, now time.Time) {
	eng.dispatcher.Tick(ctx, now)
}

// Schedule creates a job with a typed payload due at scheduledAt.
func Schedule[T any](ctx context.Context, eng *Engine, name string, payload T, scheduledAt time.Time, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return eng.ScheduleJob(ctx, name, data, scheduledAt, opts...)
}

// ScheduleJob creates a job with a pre-serialized payload due at
// scheduledAt. A zero scheduledAt means due immediately. Fields not set
// through options fall back to the scheduler's configured defaults; the
// owning user falls back to the one carried in ctx.
func (eng *Engine) ScheduleJob(ctx context.Context, name string, data json.RawMessage, scheduledAt time.Time, opts ...job.Option) (*job.Job, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, tempo.ErrMissingName
	}

	config := eng.s.Config()

	var jobOpts job.Options
	for _, opt := range opts {
		opt(&jobOpts)
	}

	now := time.Now().UTC()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	j := &job.Job{
		Entity:      tempo.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Data:        data,
		Status:      job.StatusPending,
		ScheduledAt: scheduledAt,
		Priority:    jobOpts.Priority,
		MaxRetries:  config.DefaultMaxRetries,
		RetryDelay:  config.DefaultRetryDelay,
		Timeout:     config.DefaultTimeout,
		UserID:      jobOpts.UserID,
	}
	if j.Priority == 0 {
		j.Priority = job.PriorityNormal
	}
	if jobOpts.MaxRetriesSet() {
		j.MaxRetries = jobOpts.MaxRetries
	}
	if jobOpts.RetryDelay > 0 {
		j.RetryDelay = jobOpts.RetryDelay
	}
	if jobOpts.Timeout > 0 {
		j.Timeout = jobOpts.Timeout
	}
	if j.UserID == "" {
		j.UserID = scope.Capture(ctx)
	}

	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	eng.bus.Publish(event.Event{Kind: event.KindJobScheduled, Job: j})

	eng.logger.Info("job scheduled",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Time("scheduled_at", j.ScheduledAt),
		slog.String("priority", j.Priority.String()),
	)
	return j, nil
}

// GetJob retrieves a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	return eng.jobStore.GetJob(ctx, jobID)
}

// CancelJob removes a job that has not started yet. It reports whether the
// job was cancelled: false means the job was absent or had already left
// the pending state. Running jobs are never interrupted.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	if err := eng.guard(); err != nil {
		return false, err
	}

	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, tempo.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}
	if j.Status != job.StatusPending {
		return false, nil
	}

	if err := eng.jobStore.DeleteJob(ctx, jobID); err != nil {
		return false, err
	}

	eng.bus.Publish(event.Event{Kind: event.KindJobCancelled, Job: j})
	eng.logger.Info("job cancelled",
		slog.String("job_id", jobID.String()),
		slog.String("job_name", j.Name),
	)
	return true, nil
}

// RetryJob returns a failed job to pending so the next tick picks it up.
// The attempt counter and due time are preserved; a failed job's due time
// has already elapsed, so it is immediately selectable. Only failed jobs
// can be retried manually.
func (eng *Engine) RetryJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}

	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s", tempo.ErrJobNotFailed, jobID, j.Status)
	}

	if err := eng.jobStore.UpdateJobStatus(ctx, jobID, job.StatusPending, j.ErrorMessage); err != nil {
		return nil, err
	}
	j.Status = job.StatusPending

	eng.bus.Publish(event.Event{Kind: event.KindJobRetried, Job: j})
	eng.logger.Info("job queued for manual retry",
		slog.String("job_id", jobID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.Attempts),
	)
	return j, nil
}

// ListJobsByUser returns jobs owned by the given user, optionally
// filtered by status (nil means all).
func (eng *Engine) ListJobsByUser(ctx context.Context, userID string, status *job.Status) ([]*job.Job, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	return eng.jobStore.ListJobsByUser(ctx, userID, status)
}

// ListFailedJobs returns failed jobs, optionally filtered by owner
// (empty userID means all users).
func (eng *Engine) ListFailedJobs(ctx context.Context, userID string) ([]*job.Job, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	return eng.jobStore.ListFailedJobs(ctx, userID)
}

// ScheduleRecurring creates a recurring schedule with a typed payload.
func ScheduleRecurring[T any](ctx context.Context, eng *Engine, name string, payload T, expr string, opts ...job.Option) (*recurring.Schedule, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for schedule %q: %w", name, err)
	}
	return eng.ScheduleRecurringJob(ctx, name, data, expr, opts...)
}

// ScheduleRecurringJob creates a recurring schedule from a pre-serialized
// payload and a cron expression. The expression is validated before
// anything is persisted; an invalid one fails fast with
// tempo.ErrInvalidExpression.
//
// The first occurrence is materialized immediately as a pending job due at
// the computed next run, so the cadence starts without waiting for a tick.
func (eng *Engine) ScheduleRecurringJob(ctx context.Context, name string, data json.RawMessage, expr string, opts ...job.Option) (*recurring.Schedule, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, tempo.ErrMissingName
	}
	if err := eng.validate(expr); err != nil {
		return nil, err
	}

	config := eng.s.Config()

	var jobOpts job.Options
	for _, opt := range opts {
		opt(&jobOpts)
	}

	s := &recurring.Schedule{
		Entity:         tempo.NewEntity(),
		ID:             id.NewScheduleID(),
		Name:           name,
		Data:           data,
		CronExpression: expr,
		Priority:       jobOpts.Priority,
		MaxRetries:     config.DefaultMaxRetries,
		RetryDelay:     config.DefaultRetryDelay,
		Timeout:        config.DefaultTimeout,
		UserID:         jobOpts.UserID,
		IsActive:       true,
	}
	if s.Priority == 0 {
		s.Priority = job.PriorityNormal
	}
	if jobOpts.MaxRetriesSet() {
		s.MaxRetries = jobOpts.MaxRetries
	}
	if jobOpts.RetryDelay > 0 {
		s.RetryDelay = jobOpts.RetryDelay
	}
	if jobOpts.Timeout > 0 {
		s.Timeout = jobOpts.Timeout
	}
	if s.UserID == "" {
		s.UserID = scope.Capture(ctx)
	}

	if err := eng.schedStore.CreateSchedule(ctx, s); err != nil {
		return nil, err
	}

	// Materialize the first occurrence eagerly. LastExecutedAt is stamped
	// with the occurrence instant itself, not the creation time, so the
	// advancer's next computation starts strictly after the job created
	// here and never re-materializes the same occurrence.
	now := time.Now().UTC()
	runAt := eng.next(expr, now)
	if err := eng.spawnOccurrence(ctx, s, runAt); err != nil {
		return nil, err
	}
	if err := eng.schedStore.SetLastExecuted(ctx, s.ID, runAt); err != nil {
		return nil, err
	}

	eng.logger.Info("recurring schedule created",
		slog.String("schedule_id", s.ID.String()),
		slog.String("name", s.Name),
		slog.String("cron_expression", expr),
		slog.Time("first_run_at", runAt),
	)
	return s, nil
}

// GetSchedule retrieves a recurring schedule by ID.
func (eng *Engine) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*recurring.Schedule, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	return eng.schedStore.GetSchedule(ctx, scheduleID)
}

// PauseSchedule deactivates a schedule so it stops spawning occurrences.
// Jobs it already spawned are unaffected.
func (eng *Engine) PauseSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return eng.setScheduleActive(ctx, scheduleID, false)
}

// ResumeSchedule reactivates a paused schedule.
func (eng *Engine) ResumeSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return eng.setScheduleActive(ctx, scheduleID, true)
}

func (eng *Engine) setScheduleActive(ctx context.Context, scheduleID id.ScheduleID, active bool) error {
	if err := eng.guard(); err != nil {
		return err
	}
	s, err := eng.schedStore.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if s.IsActive == active {
		return nil
	}
	s.IsActive = active
	return eng.schedStore.UpdateSchedule(ctx, s)
}

// DeleteSchedule removes a recurring schedule. Jobs it already spawned
// are unaffected.
func (eng *Engine) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	if err := eng.guard(); err != nil {
		return err
	}
	return eng.schedStore.DeleteSchedule(ctx, scheduleID)
}

// ListSchedulesByUser returns schedules owned by the given user,
// optionally filtered by the active flag (nil means both).
func (eng *Engine) ListSchedulesByUser(ctx context.Context, userID string, active *bool) ([]*recurring.Schedule, error) {
	if err := eng.guard(); err != nil {
		return nil, err
	}
	return eng.schedStore.ListSchedulesByUser(ctx, userID, active)
}

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// EventBus returns the lifecycle event bus.
func (eng *Engine) EventBus() *event.Bus { return eng.bus }

// Scheduler returns the underlying Scheduler.
func (eng *Engine) Scheduler() *tempo.Scheduler { return eng.s }

// spawnOccurrence materializes one occurrence of a schedule as a pending
// job due at runAt, copying the schedule's execution policy.
func (eng *Engine) spawnOccurrence(ctx context.Context, s *recurring.Schedule, runAt time.Time) error {
	j := &job.Job{
		Entity:      tempo.NewEntity(),
		ID:          id.NewJobID(),
		Name:        s.Name,
		Data:        s.Data,
		Status:      job.StatusPending,
		ScheduledAt: runAt,
		Priority:    s.Priority,
		MaxRetries:  s.MaxRetries,
		RetryDelay:  s.RetryDelay,
		Timeout:     s.Timeout,
		UserID:      s.UserID,
	}
	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		return err
	}
	eng.bus.Publish(event.Event{Kind: event.KindJobScheduled, Job: j})
	return nil
}
