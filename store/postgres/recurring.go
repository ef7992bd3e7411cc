package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/recurring"
)

const scheduleColumns = `
	id, name, data, cron_expression, user_id, priority, max_retries,
	retry_delay, timeout, last_executed_at, is_active, created_at, updated_at`

// CreateSchedule persists a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tempo_schedules (
			id, name, data, cron_expression, user_id, priority, max_retries,
			retry_delay, timeout, last_executed_at, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)`,
		sc.ID.String(), sc.Name, []byte(sc.Data), sc.CronExpression, sc.UserID,
		int(sc.Priority), sc.MaxRetries,
		sc.RetryDelay.Nanoseconds(), sc.Timeout.Nanoseconds(),
		sc.LastExecutedAt, sc.IsActive, sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tempo/postgres: schedule %s already exists", sc.ID)
		}
		return fmt.Errorf("tempo/postgres: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*recurring.Schedule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM tempo_schedules WHERE id = $1`,
		scheduleID.String(),
	)

	sc, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tempo.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("tempo/postgres: get schedule: %w", err)
	}
	return sc, nil
}

// UpdateSchedule replaces the mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tempo_schedules SET
			name = $2, data = $3, cron_expression = $4,
			priority = $5, max_retries = $6, retry_delay = $7, timeout = $8,
			is_active = $9, updated_at = NOW()
		WHERE id = $1`,
		sc.ID.String(), sc.Name, []byte(sc.Data), sc.CronExpression,
		int(sc.Priority), sc.MaxRetries,
		sc.RetryDelay.Nanoseconds(), sc.Timeout.Nanoseconds(),
		sc.IsActive,
	)
	if err != nil {
		return fmt.Errorf("tempo/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tempo_schedules WHERE id = $1`, scheduleID.String(),
	)
	if err != nil {
		return fmt.Errorf("tempo/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// ListActiveSchedules returns all schedules with is_active set.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]*recurring.Schedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM tempo_schedules WHERE is_active ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("tempo/postgres: list active schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ListSchedulesByUser returns schedules owned by the given user,
// optionally filtered by the active flag.
func (s *Store) ListSchedulesByUser(ctx context.Context, userID string, active *bool) ([]*recurring.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM tempo_schedules WHERE user_id = $1`
	args := []interface{}{userID}
	if active != nil {
		query += ` AND is_active = $2`
		args = append(args, *active)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tempo/postgres: list schedules by user: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// SetLastExecuted advances the schedule's last-fired instant. The value
// only moves forward.
func (s *Store) SetLastExecuted(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tempo_schedules SET
			last_executed_at = GREATEST(COALESCE(last_executed_at, $2), $2),
			updated_at = NOW()
		WHERE id = $1`,
		scheduleID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("tempo/postgres: set last executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// scanSchedule scans a single schedule row.
func scanSchedule(row pgx.Row) (*recurring.Schedule, error) {
	var (
		sc           recurring.Schedule
		idStr        string
		priorityInt  int
		retryDelayNs int64
		timeoutNs    int64
		data         []byte
	)
	err := row.Scan(
		&idStr, &sc.Name, &data, &sc.CronExpression, &sc.UserID,
		&priorityInt, &sc.MaxRetries,
		&retryDelayNs, &timeoutNs,
		&sc.LastExecutedAt, &sc.IsActive, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sc.Data = data
	sc.Priority = job.Priority(priorityInt)
	sc.RetryDelay = time.Duration(retryDelayNs)
	sc.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseScheduleID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("tempo/postgres: parse schedule id %q: %w", idStr, parseErr)
	}
	sc.ID = parsedID

	return &sc, nil
}

// collectSchedules collects all schedules from query rows.
func collectSchedules(rows pgx.Rows) ([]*recurring.Schedule, error) {
	var schedules []*recurring.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("tempo/postgres: scan schedule row: %w", err)
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tempo/postgres: iterate schedule rows: %w", err)
	}
	return schedules, nil
}
