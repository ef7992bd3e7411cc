package tempo

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Scheduler.
type Option func(*Scheduler) error

// Storer is the minimal store interface held by the Scheduler.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds the job
// and recurring store contracts.
type Storer interface {
	Ping(ctx context.Context) error
	Close() error
}

// driverRunner is an internal interface for the dispatch tick driver.
type driverRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Scheduler is the central coordinator for job scheduling. It holds the
// configuration, logger, and store handle shared by all subsystems.
//
// Create one with New() and functional options, then wire the subsystems
// with engine.Build. The Scheduler references the tick driver through an
// internal interface to avoid import cycles.
type Scheduler struct {
	config Config
	logger *slog.Logger
	store  Storer
	driver driverRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Scheduler with the given options.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.config.MaxConcurrentJobs < 1 {
		s.config.MaxConcurrentJobs = 1
	}
	return s, nil
}

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *slog.Logger { return s.logger }

// Store returns the scheduler's store.
func (s *Scheduler) Store() Storer { return s.store }

// Config returns a copy of the scheduler's configuration.
func (s *Scheduler) Config() Config { return s.config }

// SetDriver sets the tick driver (called by the engine package).
func (s *Scheduler) SetDriver(d driverRunner) { s.driver = d }

// Start begins the dispatch tick driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyInitialized
	}
	if s.driver == nil {
		return ErrNoStore
	}
	if err := s.driver.Start(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Stop halts the tick driver and closes the store.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver != nil && s.started {
		if err := s.driver.Stop(ctx); err != nil {
			s.logger.Error("driver stop error", "error", err)
		}
		s.started = false
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WithTickSchedule sets the cron-style expression driving the dispatch tick.
func WithTickSchedule(expr string) Option {
	return func(s *Scheduler) error {
		s.config.TickSchedule = expr
		return nil
	}
}

// WithMaxConcurrentJobs sets the global concurrency cap.
func WithMaxConcurrentJobs(n int) Option {
	return func(s *Scheduler) error {
		s.config.MaxConcurrentJobs = n
		return nil
	}
}

// WithDefaultRetryPolicy sets the retry budget and delay applied to jobs
// that do not override them.
func WithDefaultRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) error {
		s.config.DefaultMaxRetries = maxRetries
		s.config.DefaultRetryDelay = delay
		return nil
	}
}

// WithLogger sets the structured logger for the scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) error {
		s.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the scheduler.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds the job and recurring store interfaces.
func WithStore(st Storer) Option {
	return func(s *Scheduler) error {
		s.store = st
		return nil
	}
}
