package job

import (
	"context"
	"time"

	"github.com/reverb-labs/tempo/id"
)

// Store defines the persistence contract for jobs.
//
// UpdateJobStatus side-stamps the timestamp fields for the target status:
// transitioning to running sets ExecutedAt (first time only), completed
// sets CompletedAt, and failed records the error message. UpdatedAt is
// bumped on every write.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID. Returns tempo.ErrJobNotFound if absent.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJobStatus transitions a job to the given status, side-stamping
	// ExecutedAt/CompletedAt/ErrorMessage as appropriate for the target.
	UpdateJobStatus(ctx context.Context, jobID id.JobID, status Status, errorMessage string) error

	// IncrementAttempts bumps the attempt counter and returns the new count.
	IncrementAttempts(ctx context.Context, jobID id.JobID) (int, error)

	// RescheduleJob moves the job's due time, used when a retry is delayed.
	RescheduleJob(ctx context.Context, jobID id.JobID, at time.Time) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListPendingDue returns up to limit pending jobs whose ScheduledAt is
	// at or before now, ordered by priority (descending) then ScheduledAt
	// (ascending).
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ListJobsByUser returns jobs owned by the given user, optionally
	// filtered by status (nil means all statuses).
	ListJobsByUser(ctx context.Context, userID string, status *Status) ([]*Job, error)

	// ListFailedJobs returns failed jobs, optionally filtered by owner
	// (empty userID means all users).
	ListFailedJobs(ctx context.Context, userID string) ([]*Job, error)
}
