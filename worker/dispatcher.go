package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/recurring"
)

// Dispatcher drives the periodic tick. Each tick first advances recurring
// schedules (materializing due occurrences as pending jobs), then claims
// up to the remaining concurrency budget of due pending jobs and hands
// them to the Executor on their own goroutines.
//
// A job already in the active set is never claimed twice, so a slow job
// cannot be double-dispatched by a later tick.
type Dispatcher struct {
	store         job.Store
	executor      *Executor
	advancer      *recurring.Advancer
	schedule      cron.Schedule
	maxConcurrent int
	limiter       *rate.Limiter
	logger        *slog.Logger

	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	group   errgroup.Group
	mu      sync.Mutex
	running bool

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxConcurrent sets the global cap on simultaneously executing jobs.
func WithMaxConcurrent(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrent = n
		}
	}
}

// WithRateLimiter throttles how fast jobs may be launched, independent of
// the concurrency cap. A nil limiter means no throttling.
func WithRateLimiter(l *rate.Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

// NewDispatcher creates a Dispatcher ticking on the given schedule.
func NewDispatcher(
	store job.Store,
	executor *Executor,
	advancer *recurring.Advancer,
	schedule cron.Schedule,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		store:         store,
		executor:      executor,
		advancer:      advancer,
		schedule:      schedule,
		maxConcurrent: 10,
		logger:        logger,
		stopCh:        make(chan struct{}),
		active:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ActiveCount returns the number of jobs currently executing.
func (d *Dispatcher) ActiveCount() int {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return len(d.active)
}

// Start launches the tick loop. It returns immediately.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	d.running = true

	d.logger.Info("dispatcher starting",
		slog.Int("max_concurrent", d.maxConcurrent),
	)

	d.loopWG.Add(1)
	go d.tickLoop()
	return nil
}

// Stop halts the tick loop and waits for in-flight jobs to finish. If the
// context expires first, active jobs are cancelled and Stop waits for the
// executor goroutines to observe the cancellation.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info("dispatcher stopping")

	close(d.stopCh)
	d.loopWG.Wait()

	done := make(chan error, 1)
	go func() {
		done <- d.group.Wait()
	}()

	select {
	case err := <-done:
		d.logger.Info("dispatcher stopped gracefully")
		return err
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timed out, cancelling active jobs")
		d.cancelActive()
		return <-done
	}
}

// tickLoop fires Tick on the configured schedule until stopped.
func (d *Dispatcher) tickLoop() {
	defer d.loopWG.Done()

	for {
		now := time.Now()
		next := d.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-d.stopCh:
			timer.Stop()
			return
		case fired := <-timer.C:
			d.Tick(context.Background(), fired)
		}
	}
}

// Tick runs one dispatch cycle at the given instant: recurring schedules
// are advanced first so fresh occurrences are eligible in the same cycle,
// then due pending jobs are claimed up to the free concurrency slots,
// highest priority first.
//
// Tick is exported so callers can drive the cycle manually, for example
// from tests or a drain command.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	if d.advancer != nil {
		d.advancer.Advance(ctx, now)
	}

	d.activeMu.Lock()
	slots := d.maxConcurrent - len(d.active)
	d.activeMu.Unlock()
	if slots <= 0 {
		return
	}

	due, err := d.store.ListPendingDue(ctx, now, slots)
	if err != nil {
		d.logger.Error("failed to list due jobs", slog.String("error", err.Error()))
		return
	}

	for _, j := range due {
		if d.limiter != nil && !d.limiter.Allow() {
			break
		}
		d.launch(j)
	}
}

// launch claims the job into the active set and executes it on its own
// goroutine. Claiming is atomic with the membership check so a job is
// never dispatched twice.
func (d *Dispatcher) launch(j *job.Job) {
	key := j.ID.String()

	jobCtx, cancel := context.WithCancel(context.Background())

	d.activeMu.Lock()
	if _, dup := d.active[key]; dup {
		d.activeMu.Unlock()
		cancel()
		return
	}
	if len(d.active) >= d.maxConcurrent {
		d.activeMu.Unlock()
		cancel()
		return
	}
	d.active[key] = cancel
	d.activeMu.Unlock()

	d.group.Go(func() error {
		defer func() {
			d.activeMu.Lock()
			delete(d.active, key)
			d.activeMu.Unlock()
			cancel()
		}()

		if execErr := d.executor.Execute(jobCtx, j); execErr != nil {
			d.logger.Debug("job execution failed",
				slog.String("job_id", key),
				slog.String("job_name", j.Name),
				slog.String("error", execErr.Error()),
			)
		}
		return nil
	})
}

func (d *Dispatcher) cancelActive() {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	for key, cancel := range d.active {
		d.logger.Warn("cancelling active job", slog.String("job_id", key))
		cancel()
	}
}
