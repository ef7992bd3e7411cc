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
	"github.com/reverb-labs/tempo/recurring"
)

// CreateSchedule stores the schedule as a Hash and indexes its ID.
func (s *Store) CreateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	sID := sc.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, scheduleKey(sID), scheduleToMap(sc))
	pipe.SAdd(ctx, scheduleIDsKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*recurring.Schedule, error) {
	return s.getScheduleByKey(ctx, scheduleKey(scheduleID.String()))
}

// UpdateSchedule replaces the mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	key := scheduleKey(sc.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("tempo/redis: update schedule exists: %w", err)
	}
	if exists == 0 {
		return tempo.ErrScheduleNotFound
	}

	fields := map[string]interface{}{
		"name":            sc.Name,
		"data":            string(sc.Data),
		"cron_expression": sc.CronExpression,
		"priority":        strconv.Itoa(int(sc.Priority)),
		"max_retries":     strconv.Itoa(sc.MaxRetries),
		"retry_delay":     strconv.FormatInt(int64(sc.RetryDelay), 10),
		"timeout":         strconv.FormatInt(int64(sc.Timeout), 10),
		"is_active":       strconv.FormatBool(sc.IsActive),
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("tempo/redis: update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	sID := scheduleID.String()
	key := scheduleKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("tempo/redis: delete schedule exists: %w", err)
	}
	if exists == 0 {
		return tempo.ErrScheduleNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tempo/redis: delete schedule: %w", err)
	}
	return nil
}

// ListActiveSchedules returns all schedules with the active flag set.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]*recurring.Schedule, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: list schedules smembers: %w", err)
	}

	var schedules []*recurring.Schedule
	for _, sID := range ids {
		sc, getErr := s.getScheduleByKey(ctx, scheduleKey(sID))
		if getErr != nil {
			continue
		}
		if !sc.IsActive {
			continue
		}
		schedules = append(schedules, sc)
	}
	return schedules, nil
}

// ListSchedulesByUser returns schedules owned by the given user, optionally
// filtered by the active flag.
func (s *Store) ListSchedulesByUser(ctx context.Context, userID string, active *bool) ([]*recurring.Schedule, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: list schedules smembers: %w", err)
	}

	schedules := make([]*recurring.Schedule, 0, len(ids))
	for _, sID := range ids {
		sc, getErr := s.getScheduleByKey(ctx, scheduleKey(sID))
		if getErr != nil {
			continue
		}
		if sc.UserID != userID {
			continue
		}
		if active != nil && sc.IsActive != *active {
			continue
		}
		schedules = append(schedules, sc)
	}
	return schedules, nil
}

// SetLastExecuted advances the schedule's last-fired instant. The value only
// moves forward.
func (s *Store) SetLastExecuted(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	key := scheduleKey(scheduleID.String())

	sc, err := s.getScheduleByKey(ctx, key)
	if err != nil {
		return err
	}
	if sc.LastExecutedAt != nil && sc.LastExecutedAt.After(at) {
		return nil
	}

	fields := map[string]interface{}{
		"last_executed_at": at.Format(time.RFC3339Nano),
		"updated_at":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("tempo/redis: set last executed: %w", err)
	}
	return nil
}

// ── helpers ──

func scheduleToMap(sc *recurring.Schedule) map[string]interface{} {
	m := map[string]interface{}{
		"id":              sc.ID.String(),
		"name":            sc.Name,
		"data":            string(sc.Data),
		"cron_expression": sc.CronExpression,
		"user_id":         sc.UserID,
		"priority":        strconv.Itoa(int(sc.Priority)),
		"max_retries":     strconv.Itoa(sc.MaxRetries),
		"retry_delay":     strconv.FormatInt(int64(sc.RetryDelay), 10),
		"timeout":         strconv.FormatInt(int64(sc.Timeout), 10),
		"is_active":       strconv.FormatBool(sc.IsActive),
		"created_at":      sc.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      sc.UpdatedAt.Format(time.RFC3339Nano),
	}
	if sc.LastExecutedAt != nil {
		m["last_executed_at"] = sc.LastExecutedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getScheduleByKey(ctx context.Context, key string) (*recurring.Schedule, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, tempo.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("tempo/redis: get schedule: %w", err)
	}
	if len(vals) == 0 {
		return nil, tempo.ErrScheduleNotFound
	}
	return mapToSchedule(vals)
}

func mapToSchedule(m map[string]string) (*recurring.Schedule, error) {
	sID, err := id.ParseScheduleID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("tempo/redis: parse schedule id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])                  //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"])             //nolint:errcheck // best-effort parse from trusted Redis data
	retryDelay, _ := strconv.ParseInt(m["retry_delay"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)        //nolint:errcheck // best-effort parse from trusted Redis data
	isActive, _ := strconv.ParseBool(m["is_active"])            //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	sc := &recurring.Schedule{
		Entity: tempo.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:             sID,
		Name:           m["name"],
		Data:           []byte(m["data"]),
		CronExpression: m["cron_expression"],
		UserID:         m["user_id"],
		Priority:       job.Priority(priority),
		MaxRetries:     maxRetries,
		RetryDelay:     time.Duration(retryDelay),
		Timeout:        time.Duration(timeout),
		IsActive:       isActive,
	}

	if v := m["last_executed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		sc.LastExecutedAt = &t
	}

	return sc, nil
}
