// Package recurring defines recurring schedules: templates that
// periodically materialize concrete jobs according to a cron-like
// expression. It contains the schedule entity, its persistence contract,
// the next-run calculator, and the Advancer that spawns due occurrences
// on each engine tick.
package recurring

import (
	"encoding/json"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
)

// Schedule is a template that spawns jobs on a cron-like cadence. The
// priority, retry, and timeout policy is copied onto every spawned job.
// A schedule never mutates jobs it has already spawned.
type Schedule struct {
	tempo.Entity

	ID             id.ScheduleID   `json:"id"`
	Name           string          `json:"name"`
	Data           json.RawMessage `json:"data,omitempty"`
	CronExpression string          `json:"cron_expression"`
	UserID         string          `json:"user_id,omitempty"`
	Priority       job.Priority    `json:"priority"`
	MaxRetries     int             `json:"max_retries"`
	RetryDelay     time.Duration   `json:"retry_delay,omitempty"`
	Timeout        time.Duration   `json:"timeout,omitempty"`
	LastExecutedAt *time.Time      `json:"last_executed_at,omitempty"`
	IsActive       bool            `json:"is_active"`
}
