// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/recurring"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle with package users), so each
// subsystem contract is verified separately.
var (
	_ job.Store       = (*Store)(nil)
	_ recurring.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs      map[string]*job.Job
	schedules map[string]*recurring.Schedule
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.Job),
		schedules: make(map[string]*recurring.Schedule),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *j
	m.jobs[j.ID.String()] = &cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, tempo.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJobStatus transitions a job to the given status, side-stamping the
// timestamp fields for the target status.
func (m *Store) UpdateJobStatus(_ context.Context, jobID id.JobID, status job.Status, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return tempo.ErrJobNotFound
	}

	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now

	switch status {
	case job.StatusRunning:
		if j.ExecutedAt == nil {
			n := now
			j.ExecutedAt = &n
		}
	case job.StatusCompleted:
		n := now
		j.CompletedAt = &n
		j.ErrorMessage = ""
	case job.StatusFailed, job.StatusPending:
		j.ErrorMessage = errorMessage
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (m *Store) IncrementAttempts(_ context.Context, jobID id.JobID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return 0, tempo.ErrJobNotFound
	}
	j.Attempts++
	j.UpdatedAt = time.Now().UTC()
	return j.Attempts, nil
}

// RescheduleJob moves the job's due time.
func (m *Store) RescheduleJob(_ context.Context, jobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return tempo.ErrJobNotFound
	}
	j.ScheduledAt = at
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return tempo.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListPendingDue returns up to limit pending jobs due at or before now,
// ordered by priority descending then due time ascending.
func (m *Store) ListPendingDue(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != job.StatusPending {
			continue
		}
		if j.ScheduledAt.After(now) {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		cp := *j
		result[i] = &cp
	}
	return result, nil
}

// ListJobsByUser returns jobs owned by the given user, optionally filtered
// by status.
func (m *Store) ListJobsByUser(_ context.Context, userID string, status *job.Status) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.UserID != userID {
			continue
		}
		if status != nil && j.Status != *status {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ListFailedJobs returns failed jobs, optionally filtered by owner.
func (m *Store) ListFailedJobs(_ context.Context, userID string) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusFailed {
			continue
		}
		if userID != "" && j.UserID != userID {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].UpdatedAt.Before(result[k].UpdatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Recurring Store
// ──────────────────────────────────────────────────

// CreateSchedule persists a new schedule.
func (m *Store) CreateSchedule(_ context.Context, s *recurring.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.schedules[s.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*recurring.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, tempo.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSchedule replaces the mutable fields of an existing schedule.
func (m *Store) UpdateSchedule(_ context.Context, s *recurring.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.schedules[s.ID.String()]
	if !ok {
		return tempo.ErrScheduleNotFound
	}

	existing.Name = s.Name
	existing.Data = s.Data
	existing.CronExpression = s.CronExpression
	existing.Priority = s.Priority
	existing.MaxRetries = s.MaxRetries
	existing.RetryDelay = s.RetryDelay
	existing.Timeout = s.Timeout
	existing.IsActive = s.IsActive
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return tempo.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// ListActiveSchedules returns all schedules with IsActive set.
func (m *Store) ListActiveSchedules(_ context.Context) ([]*recurring.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*recurring.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		if !s.IsActive {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ListSchedulesByUser returns schedules owned by the given user,
// optionally filtered by the active flag.
func (m *Store) ListSchedulesByUser(_ context.Context, userID string, active *bool) ([]*recurring.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*recurring.Schedule, 0)
	for _, s := range m.schedules {
		if s.UserID != userID {
			continue
		}
		if active != nil && s.IsActive != *active {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// SetLastExecuted advances the schedule's last-fired instant. The value
// only moves forward.
func (m *Store) SetLastExecuted(_ context.Context, scheduleID id.ScheduleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return tempo.ErrScheduleNotFound
	}
	if s.LastExecutedAt == nil || at.After(*s.LastExecutedAt) {
		cp := at
		s.LastExecutedAt = &cp
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}
