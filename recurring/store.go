package recurring

import (
	"context"
	"time"

	"github.com/reverb-labs/tempo/id"
)

// Store defines the persistence contract for recurring schedules.
type Store interface {
	// CreateSchedule persists a new schedule.
	CreateSchedule(ctx context.Context, s *Schedule) error

	// GetSchedule retrieves a schedule by ID.
	// Returns tempo.ErrScheduleNotFound if absent.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error)

	// UpdateSchedule replaces the mutable fields of an existing schedule
	// (name, data, expression, policy, active flag) and bumps UpdatedAt.
	UpdateSchedule(ctx context.Context, s *Schedule) error

	// DeleteSchedule removes a schedule by ID. Jobs it already spawned are
	// unaffected.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error

	// ListActiveSchedules returns all schedules with IsActive set.
	ListActiveSchedules(ctx context.Context) ([]*Schedule, error)

	// ListSchedulesByUser returns schedules owned by the given user,
	// optionally filtered by the active flag (nil means both).
	ListSchedulesByUser(ctx context.Context, userID string, active *bool) ([]*Schedule, error)

	// SetLastExecuted advances the schedule's last-fired instant. The value
	// only moves forward; the engine never rewinds it.
	SetLastExecuted(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error
}
