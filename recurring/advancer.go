package recurring

import (
	"context"
	"log/slog"
	"time"
)

// SpawnFunc materializes one occurrence of a schedule as a concrete job
// due at runAt. The engine provides the implementation; this indirection
// keeps the recurring package free of a dependency on the job store.
type SpawnFunc func(ctx context.Context, s *Schedule, runAt time.Time) error

// Advancer walks the active schedules each tick and spawns due
// occurrences. At most one job is spawned per schedule per tick: when the
// tick interval is coarser than the cron period, missed occurrences are
// not backfilled — each tick advances by exactly one period relative to
// the last fire.
type Advancer struct {
	store  Store
	spawn  SpawnFunc
	next   NextFunc
	logger *slog.Logger
}

// NewAdvancer creates an Advancer. If next is nil the heuristic calculator
// is used.
func NewAdvancer(store Store, spawn SpawnFunc, next NextFunc, logger *slog.Logger) *Advancer {
	if next == nil {
		next = Next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advancer{store: store, spawn: spawn, next: next, logger: logger}
}

// Advance processes every active schedule once. A schedule that has never
// fired gets its first occurrence created immediately at the computed next
// run instant; one that has fired spawns only when the occurrence computed
// from its last fire is due. Failures are logged per schedule and never
// abort the sweep.
func (a *Advancer) Advance(ctx context.Context, now time.Time) {
	schedules, err := a.store.ListActiveSchedules(ctx)
	if err != nil {
		a.logger.Error("list active schedules error", slog.String("error", err.Error()))
		return
	}

	for _, s := range schedules {
		if err := a.advanceOne(ctx, s, now); err != nil {
			a.logger.Error("advance schedule error",
				slog.String("schedule_id", s.ID.String()),
				slog.String("name", s.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (a *Advancer) advanceOne(ctx context.Context, s *Schedule, now time.Time) error {
	var runAt time.Time
	if s.LastExecutedAt == nil {
		runAt = a.next(s.CronExpression, now)
	} else {
		runAt = a.next(s.CronExpression, *s.LastExecutedAt)
		if runAt.After(now) {
			return nil // Not due yet.
		}
	}

	if err := a.spawn(ctx, s, runAt); err != nil {
		return err
	}

	// Stamp the later of the tick instant and the spawned occurrence, so
	// the next computation starts strictly after the occurrence just
	// materialized and first occurrences are never spawned twice.
	stamp := now
	if runAt.After(now) {
		stamp = runAt
	}
	if err := a.store.SetLastExecuted(ctx, s.ID, stamp); err != nil {
		return err
	}

	a.logger.Info("recurring occurrence spawned",
		slog.String("schedule_id", s.ID.String()),
		slog.String("name", s.Name),
		slog.Time("run_at", runAt),
	)

	return nil
}
