package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to become due and be dispatched.
	StatusPending Status = "pending"
	// StatusRunning means the engine is currently executing the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the last attempt failed. The job may still return
	// to pending if its retry budget is not exhausted.
	StatusFailed Status = "failed"
)

// Priority orders job selection. Among due jobs, higher priority is always
// dispatched first regardless of how much later it is due; the scheduled
// time breaks ties within a priority.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(data []byte) error {
	switch string(data) {
	case "low":
		*p = PriorityLow
	case "normal", "":
		*p = PriorityNormal
	case "high":
		*p = PriorityHigh
	default:
		return fmt.Errorf("job: unknown priority %q", data)
	}
	return nil
}

// Job represents a unit of work to be dispatched by the engine.
type Job struct {
	tempo.Entity

	ID           id.JobID        `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data,omitempty"`
	Status       Status          `json:"status"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Attempts     int             `json:"attempts"`
	Priority     Priority        `json:"priority"`
	MaxRetries   int             `json:"max_retries"`
	RetryDelay   time.Duration   `json:"retry_delay,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
}

// Result is the outcome of one handler invocation, carried on lifecycle
// events alongside the job.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
