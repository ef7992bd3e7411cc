package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
)

const jobColumns = `
	id, name, data, status, scheduled_at, executed_at, completed_at,
	error_message, attempts, priority, max_retries, retry_delay, timeout,
	user_id, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tempo_jobs (
			id, name, data, status, scheduled_at, executed_at, completed_at,
			error_message, attempts, priority, max_retries, retry_delay, timeout,
			user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16
		)`,
		j.ID.String(), j.Name, []byte(j.Data), string(j.Status),
		j.ScheduledAt, j.ExecutedAt, j.CompletedAt,
		j.ErrorMessage, j.Attempts, int(j.Priority), j.MaxRetries,
		j.RetryDelay.Nanoseconds(), j.Timeout.Nanoseconds(),
		j.UserID, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tempo/postgres: job %s already exists", j.ID)
		}
		return fmt.Errorf("tempo/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM tempo_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tempo.ErrJobNotFound
		}
		return nil, fmt.Errorf("tempo/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJobStatus transitions a job to the given status. Timestamp fields
// are side-stamped in SQL so the transition is a single round trip:
// the first running transition stamps executed_at, completed stamps
// completed_at and clears the error, failed and pending record it.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID id.JobID, status job.Status, errorMessage string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tempo_jobs SET
			status = $2,
			executed_at = CASE
				WHEN $2 = 'running' AND executed_at IS NULL THEN NOW()
				ELSE executed_at
			END,
			completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
			error_message = CASE
				WHEN $2 = 'completed' THEN ''
				WHEN $2 IN ('failed', 'pending') THEN $3
				ELSE error_message
			END,
			updated_at = NOW()
		WHERE id = $1`,
		jobID.String(), string(status), errorMessage,
	)
	if err != nil {
		return fmt.Errorf("tempo/postgres: update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, jobID id.JobID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE tempo_jobs
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts`,
		jobID.String(),
	).Scan(&attempts)
	if err != nil {
		if isNoRows(err) {
			return 0, tempo.ErrJobNotFound
		}
		return 0, fmt.Errorf("tempo/postgres: increment attempts: %w", err)
	}
	return attempts, nil
}

// RescheduleJob moves the job's due time.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tempo_jobs SET scheduled_at = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("tempo/postgres: reschedule job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tempo_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("tempo/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// ListPendingDue returns up to limit pending jobs due at or before now,
// ordered by priority descending then due time ascending.
func (s *Store) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM tempo_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY priority DESC, scheduled_at ASC`
	args := []interface{}{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tempo/postgres: list pending due: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByUser returns jobs owned by the given user, optionally filtered
// by status.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, status *job.Status) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tempo_jobs WHERE user_id = $1`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tempo/postgres: list jobs by user: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListFailedJobs returns failed jobs, optionally filtered by owner.
func (s *Store) ListFailedJobs(ctx context.Context, userID string) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tempo_jobs WHERE status = 'failed'`
	args := []interface{}{}
	if userID != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tempo/postgres: list failed jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j            job.Job
		idStr        string
		statusStr    string
		priorityInt  int
		retryDelayNs int64
		timeoutNs    int64
		data         []byte
	)
	err := row.Scan(
		&idStr, &j.Name, &data, &statusStr,
		&j.ScheduledAt, &j.ExecutedAt, &j.CompletedAt,
		&j.ErrorMessage, &j.Attempts, &priorityInt, &j.MaxRetries,
		&retryDelayNs, &timeoutNs,
		&j.UserID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Data = data
	j.Status = job.Status(statusStr)
	j.Priority = job.Priority(priorityInt)
	j.RetryDelay = time.Duration(retryDelayNs)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("tempo/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("tempo/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tempo/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
