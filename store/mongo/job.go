package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.Collection(colJobs).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tempo/mongo: job %s already exists", m.ID)
		}
		return fmt.Errorf("tempo/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tempo.ErrJobNotFound
		}
		return nil, fmt.Errorf("tempo/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// UpdateJobStatus transitions a job to the given status, side-stamping the
// timestamp fields appropriate for the target.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID id.JobID, status job.Status, errorMessage string) error {
	t := now()
	set := bson.M{
		"status":     string(status),
		"updated_at": t,
	}
	filter := bson.M{"_id": jobID.String()}

	switch status {
	case job.StatusRunning:
		// ExecutedAt stamps on the first run only; $min with a far-future
		// sentinel would be wrong here, so a conditional pipeline is used.
		res, err := s.db.Collection(colJobs).UpdateOne(ctx, filter, mongoPipe(
			bson.M{"$set": bson.M{
				"status":      string(status),
				"updated_at":  t,
				"executed_at": bson.M{"$ifNull": bson.A{"$executed_at", t}},
			}},
		))
		if err != nil {
			return fmt.Errorf("tempo/mongo: update job status: %w", err)
		}
		if res.MatchedCount == 0 {
			return tempo.ErrJobNotFound
		}
		return nil
	case job.StatusCompleted:
		set["completed_at"] = t
		set["error_message"] = ""
	case job.StatusFailed, job.StatusPending:
		set["error_message"] = errorMessage
	}

	res, err := s.db.Collection(colJobs).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("tempo/mongo: update job status: %w", err)
	}
	if res.MatchedCount == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, jobID id.JobID) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m jobModel
	err := s.db.Collection(colJobs).FindOneAndUpdate(ctx,
		bson.M{"_id": jobID.String()},
		bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"updated_at": now()},
		},
		opts,
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, tempo.ErrJobNotFound
		}
		return 0, fmt.Errorf("tempo/mongo: increment attempts: %w", err)
	}
	return m.Attempts, nil
}

// RescheduleJob moves the job's due time.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx,
		bson.M{"_id": jobID.String()},
		bson.M{"$set": bson.M{
			"scheduled_at": at,
			"updated_at":   now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("tempo/mongo: reschedule job: %w", err)
	}
	if res.MatchedCount == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.Collection(colJobs).DeleteOne(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return fmt.Errorf("tempo/mongo: delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return tempo.ErrJobNotFound
	}
	return nil
}

// ListPendingDue returns up to limit pending jobs due at or before now,
// ordered by priority (descending) then due time (ascending).
func (s *Store) ListPendingDue(ctx context.Context, nowAt time.Time, limit int) ([]*job.Job, error) {
	filter := bson.M{
		"status":       string(job.StatusPending),
		"scheduled_at": bson.M{"$lte": nowAt},
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "scheduled_at", Value: 1},
	})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	return s.findJobs(ctx, filter, findOpts)
}

// ListJobsByUser returns jobs owned by the given user, optionally filtered
// by status.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, status *job.Status) ([]*job.Job, error) {
	filter := bson.M{"user_id": userID}
	if status != nil {
		filter["status"] = string(*status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return s.findJobs(ctx, filter, findOpts)
}

// ListFailedJobs returns failed jobs, optionally filtered by owner.
func (s *Store) ListFailedJobs(ctx context.Context, userID string) ([]*job.Job, error) {
	filter := bson.M{"status": string(job.StatusFailed)}
	if userID != "" {
		filter["user_id"] = userID
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	return s.findJobs(ctx, filter, findOpts)
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) findJobs(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*job.Job, error) {
	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("tempo/mongo: find jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("tempo/mongo: find jobs decode: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("tempo/mongo: find jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// mongoPipe wraps update stages as an aggregation pipeline update.
func mongoPipe(stages ...bson.M) bson.A {
	pipe := make(bson.A, 0, len(stages))
	for _, st := range stages {
		pipe = append(pipe, st)
	}
	return pipe
}
