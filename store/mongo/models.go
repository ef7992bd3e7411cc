package mongo

import (
	"fmt"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/recurring"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Data         []byte     `bson:"data,omitempty"`
	Status       string     `bson:"status"`
	ScheduledAt  time.Time  `bson:"scheduled_at"`
	ExecutedAt   *time.Time `bson:"executed_at,omitempty"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
	ErrorMessage string     `bson:"error_message"`
	Attempts     int        `bson:"attempts"`
	Priority     int        `bson:"priority"`
	MaxRetries   int        `bson:"max_retries"`
	RetryDelay   int64      `bson:"retry_delay"`
	Timeout      int64      `bson:"timeout"`
	UserID       string     `bson:"user_id"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Name:         j.Name,
		Data:         j.Data,
		Status:       string(j.Status),
		ScheduledAt:  j.ScheduledAt,
		ExecutedAt:   j.ExecutedAt,
		CompletedAt:  j.CompletedAt,
		ErrorMessage: j.ErrorMessage,
		Attempts:     j.Attempts,
		Priority:     int(j.Priority),
		MaxRetries:   j.MaxRetries,
		RetryDelay:   j.RetryDelay.Nanoseconds(),
		Timeout:      j.Timeout.Nanoseconds(),
		UserID:       j.UserID,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("tempo/mongo: parse job id %q: %w", m.ID, err)
	}

	return &job.Job{
		Entity: tempo.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Name:         m.Name,
		Data:         m.Data,
		Status:       job.Status(m.Status),
		ScheduledAt:  m.ScheduledAt,
		ExecutedAt:   m.ExecutedAt,
		CompletedAt:  m.CompletedAt,
		ErrorMessage: m.ErrorMessage,
		Attempts:     m.Attempts,
		Priority:     job.Priority(m.Priority),
		MaxRetries:   m.MaxRetries,
		RetryDelay:   time.Duration(m.RetryDelay),
		Timeout:      time.Duration(m.Timeout),
		UserID:       m.UserID,
	}, nil
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	ID             string     `bson:"_id"`
	Name           string     `bson:"name"`
	Data           []byte     `bson:"data,omitempty"`
	CronExpression string     `bson:"cron_expression"`
	UserID         string     `bson:"user_id"`
	Priority       int        `bson:"priority"`
	MaxRetries     int        `bson:"max_retries"`
	RetryDelay     int64      `bson:"retry_delay"`
	Timeout        int64      `bson:"timeout"`
	LastExecutedAt *time.Time `bson:"last_executed_at,omitempty"`
	IsActive       bool       `bson:"is_active"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toScheduleModel(sc *recurring.Schedule) *scheduleModel {
	return &scheduleModel{
		ID:             sc.ID.String(),
		Name:           sc.Name,
		Data:           sc.Data,
		CronExpression: sc.CronExpression,
		UserID:         sc.UserID,
		Priority:       int(sc.Priority),
		MaxRetries:     sc.MaxRetries,
		RetryDelay:     sc.RetryDelay.Nanoseconds(),
		Timeout:        sc.Timeout.Nanoseconds(),
		LastExecutedAt: sc.LastExecutedAt,
		IsActive:       sc.IsActive,
		CreatedAt:      sc.CreatedAt,
		UpdatedAt:      sc.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*recurring.Schedule, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("tempo/mongo: parse schedule id %q: %w", m.ID, err)
	}

	return &recurring.Schedule{
		Entity: tempo.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             parsedID,
		Name:           m.Name,
		Data:           m.Data,
		CronExpression: m.CronExpression,
		UserID:         m.UserID,
		Priority:       job.Priority(m.Priority),
		MaxRetries:     m.MaxRetries,
		RetryDelay:     time.Duration(m.RetryDelay),
		Timeout:        time.Duration(m.Timeout),
		LastExecutedAt: m.LastExecutedAt,
		IsActive:       m.IsActive,
	}, nil
}
