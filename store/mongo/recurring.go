package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/recurring"
)

// CreateSchedule persists a new recurring schedule.
func (s *Store) CreateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	m := toScheduleModel(sc)
	_, err := s.db.Collection(colSchedules).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tempo/mongo: schedule %s already exists", m.ID)
		}
		return fmt.Errorf("tempo/mongo: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*recurring.Schedule, error) {
	var m scheduleModel
	err := s.db.Collection(colSchedules).FindOne(ctx, bson.M{"_id": scheduleID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tempo.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("tempo/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// UpdateSchedule replaces the mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sc *recurring.Schedule) error {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": sc.ID.String()},
		bson.M{"$set": bson.M{
			"name":            sc.Name,
			"data":            []byte(sc.Data),
			"cron_expression": sc.CronExpression,
			"priority":        int(sc.Priority),
			"max_retries":     sc.MaxRetries,
			"retry_delay":     sc.RetryDelay.Nanoseconds(),
			"timeout":         sc.Timeout.Nanoseconds(),
			"is_active":       sc.IsActive,
			"updated_at":      now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("tempo/mongo: update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.Collection(colSchedules).DeleteOne(ctx, bson.M{"_id": scheduleID.String()})
	if err != nil {
		return fmt.Errorf("tempo/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// ListActiveSchedules returns all schedules with the active flag set.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]*recurring.Schedule, error) {
	return s.findSchedules(ctx, bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// ListSchedulesByUser returns schedules owned by the given user, optionally
// filtered by the active flag.
func (s *Store) ListSchedulesByUser(ctx context.Context, userID string, active *bool) ([]*recurring.Schedule, error) {
	filter := bson.M{"user_id": userID}
	if active != nil {
		filter["is_active"] = *active
	}
	return s.findSchedules(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// SetLastExecuted advances the schedule's last-fired instant. $max keeps the
// value from ever moving backwards.
func (s *Store) SetLastExecuted(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": scheduleID.String()},
		bson.M{
			"$max": bson.M{"last_executed_at": at},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("tempo/mongo: set last executed: %w", err)
	}
	if res.MatchedCount == 0 {
		return tempo.ErrScheduleNotFound
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) findSchedules(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*recurring.Schedule, error) {
	cursor, err := s.db.Collection(colSchedules).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("tempo/mongo: find schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var models []scheduleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("tempo/mongo: find schedules decode: %w", err)
	}

	schedules := make([]*recurring.Schedule, 0, len(models))
	for i := range models {
		sc, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("tempo/mongo: find schedules convert: %w", convErr)
		}
		schedules = append(schedules, sc)
	}
	return schedules, nil
}
