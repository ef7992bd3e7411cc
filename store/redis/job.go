package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
)

// CreateJob stores the job as a Hash and, when pending, adds it to the
// pending Sorted Set.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jID), jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	if j.Status == job.StatusPending {
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: jobScore(j.Priority, j.ScheduledAt), Member: jID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJobStatus transitions a job to the given status, side-stamping the
// timestamp fields and maintaining pending-set membership.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID id.JobID, status job.Status, errorMessage string) error {
	jID := jobID.String()
	key := jobKey(jID)

	j, err := s.getJobByKey(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":     string(status),
		"updated_at": now.Format(time.RFC3339Nano),
	}
	switch status {
	case job.StatusRunning:
		if j.ExecutedAt == nil {
			fields["executed_at"] = now.Format(time.RFC3339Nano)
		}
	case job.StatusCompleted:
		fields["completed_at"] = now.Format(time.RFC3339Nano)
		fields["error_message"] = ""
	case job.StatusFailed, job.StatusPending:
		fields["error_message"] = errorMessage
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if status == job.StatusPending {
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: jobScore(j.Priority, j.ScheduledAt), Member: jID})
	} else {
		pipe.ZRem(ctx, pendingKey, jID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: update job status: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, jobID id.JobID) (int, error) {
	key := jobKey(jobID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("tempo/redis: increment attempts exists: %w", err)
	}
	if exists == 0 {
		return 0, tempo.ErrJobNotFound
	}

	n, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("tempo/redis: increment attempts: %w", err)
	}
	return int(n), nil
}

// RescheduleJob moves the job's due time and refreshes its pending score.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	jID := jobID.String()
	key := jobKey(jID)

	j, err := s.getJobByKey(ctx, key)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"scheduled_at", at.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if j.Status == job.StatusPending {
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: jobScore(j.Priority, at), Member: jID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: reschedule job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("tempo/redis: delete job exists: %w", err)
	}
	if exists == 0 {
		return tempo.ErrJobNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, pendingKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: delete job: %w", err)
	}
	return nil
}

// ListPendingDue returns up to limit pending jobs due at or before now.
// The pending Sorted Set already orders by priority then due time, so the
// sweep walks it in score order and filters on the due check.
func (s *Store) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	ids, err := s.client.ZRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: list pending zrange: %w", err)
	}

	var jobs []*job.Job
	for _, jID := range ids {
		if limit > 0 && len(jobs) >= limit {
			break
		}
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.Status != job.StatusPending || j.ScheduledAt.After(now) {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListJobsByUser returns jobs owned by the given user, optionally filtered
// by status.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, status *job.Status) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.UserID != userID {
			continue
		}
		if status != nil && j.Status != *status {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ListFailedJobs returns failed jobs, optionally filtered by owner.
func (s *Store) ListFailedJobs(ctx context.Context, userID string) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: list failed smembers: %w", err)
	}

	var jobs []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.Status != job.StatusFailed {
			continue
		}
		if userID != "" && j.UserID != userID {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── helpers ──

// jobScore computes a sorted-set score from priority and due time.
// Lower score sorts first; priority is negated so higher priority jobs
// sort first, with a fractional time component for FIFO within a priority.
func jobScore(priority job.Priority, scheduledAt time.Time) float64 {
	return float64(-priority) + float64(scheduledAt.UnixMilli())/1e15
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":            j.ID.String(),
		"name":          j.Name,
		"data":          string(j.Data),
		"status":        string(j.Status),
		"scheduled_at":  j.ScheduledAt.Format(time.RFC3339Nano),
		"error_message": j.ErrorMessage,
		"attempts":      strconv.Itoa(j.Attempts),
		"priority":      strconv.Itoa(int(j.Priority)),
		"max_retries":   strconv.Itoa(j.MaxRetries),
		"retry_delay":   strconv.FormatInt(int64(j.RetryDelay), 10),
		"timeout":       strconv.FormatInt(int64(j.Timeout), 10),
		"user_id":       j.UserID,
		"created_at":    j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.ExecutedAt != nil {
		m["executed_at"] = j.ExecutedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, tempo.ErrJobNotFound
		}
		return nil, fmt.Errorf("tempo/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, tempo.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])                   //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])                   //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"])              //nolint:errcheck // best-effort parse from trusted Redis data
	retryDelay, _ := strconv.ParseInt(m["retry_delay"], 10, 64)  //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)         //nolint:errcheck // best-effort parse from trusted Redis data
	scheduledAt, _ := time.Parse(time.RFC3339Nano, m["scheduled_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])     //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])     //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: tempo.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           jID,
		Name:         m["name"],
		Data:         []byte(m["data"]),
		Status:       job.Status(m["status"]),
		ScheduledAt:  scheduledAt,
		ErrorMessage: m["error_message"],
		Attempts:     attempts,
		Priority:     job.Priority(priority),
		MaxRetries:   maxRetries,
		RetryDelay:   time.Duration(retryDelay),
		Timeout:      time.Duration(timeout),
		UserID:       m["user_id"],
	}

	if v := m["executed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.ExecutedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}

	return j, nil
}
