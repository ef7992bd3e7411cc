package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reverb-labs/tempo"
	"github.com/reverb-labs/tempo/backoff"
	"github.com/reverb-labs/tempo/engine"
	"github.com/reverb-labs/tempo/event"
	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/scope"
	"github.com/reverb-labs/tempo/store/memory"
)

// ──────────────────────────────────────────────────
// Test payloads and helpers
// ──────────────────────────────────────────────────

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	sched, err := tempo.New(
		tempo.WithStore(s),
		tempo.WithTickSchedule("@every 1h"), // ticks are driven manually
		tempo.WithMaxConcurrentJobs(4),
	)
	if err != nil {
		t.Fatalf("tempo.New: %v", err)
	}

	eng, err := engine.Build(sched, opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Shutdown(context.Background())
	})
	return eng, s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// End-to-end: Register → Schedule → Tick → Process
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd(t *testing.T) {
	eng, _ := newEngine(t)

	var processed atomic.Bool
	var gotPayload emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) (any, error) {
		gotPayload = p
		processed.Store(true)
		return map[string]string{"message_id": "msg_1"}, nil
	})
	engine.Register(eng, def)

	j, err := engine.Schedule(context.Background(), eng, "send-email", emailPayload{
		To:      "alice@example.com",
		Subject: "Hello",
	}, time.Time{})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("Status = %q, want pending", j.Status)
	}

	eng.Tick(context.Background(), time.Now().UTC())
	waitFor(t, processed.Load, "job never processed")

	if gotPayload.To != "alice@example.com" {
		t.Errorf("payload.To = %q", gotPayload.To)
	}

	waitFor(t, func() bool {
		got, getErr := eng.GetJob(context.Background(), j.ID)
		return getErr == nil && got.Status == job.StatusCompleted
	}, "job never marked completed")
}

func TestEngine_NotInitializedGuard(t *testing.T) {
	s := memory.New()
	sched, err := tempo.New(tempo.WithStore(s), tempo.WithTickSchedule("@every 1h"))
	if err != nil {
		t.Fatalf("tempo.New: %v", err)
	}
	eng, err := engine.Build(sched)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	_, err = eng.ScheduleJob(context.Background(), "nope", nil, time.Time{})
	if !errors.Is(err, tempo.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	_, err = eng.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, tempo.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	// Shutdown before Initialize is a no-op.
	if err := eng.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown before Initialize: %v", err)
	}
}

func TestEngine_InitializeIdempotent(t *testing.T) {
	eng, _ := newEngine(t)

	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if err := eng.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := eng.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestEngine_InvalidTickSchedule(t *testing.T) {
	sched, err := tempo.New(
		tempo.WithStore(memory.New()),
		tempo.WithTickSchedule("not a schedule"),
	)
	if err != nil {
		t.Fatalf("tempo.New: %v", err)
	}
	if _, err := engine.Build(sched); err == nil {
		t.Fatal("expected error for invalid tick schedule")
	}
}

func TestEngine_BuildWithoutStore(t *testing.T) {
	sched, err := tempo.New()
	if err != nil {
		t.Fatalf("tempo.New: %v", err)
	}
	if _, err := engine.Build(sched); !errors.Is(err, tempo.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Scheduling defaults and options
// ──────────────────────────────────────────────────

func TestScheduleJob_AppliesDefaults(t *testing.T) {
	eng, _ := newEngine(t)
	config := eng.Scheduler().Config()

	j, err := eng.ScheduleJob(context.Background(), "bare", nil, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	if j.Priority != job.PriorityNormal {
		t.Errorf("Priority = %v, want normal", j.Priority)
	}
	if j.MaxRetries != config.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", j.MaxRetries, config.DefaultMaxRetries)
	}
	if j.RetryDelay != config.DefaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", j.RetryDelay, config.DefaultRetryDelay)
	}
	if j.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", j.Timeout, config.DefaultTimeout)
	}
	if j.ScheduledAt.IsZero() {
		t.Error("zero scheduledAt should default to now")
	}
}

func TestScheduleJob_OptionsOverrideDefaults(t *testing.T) {
	eng, _ := newEngine(t)

	at := time.Now().UTC().Add(time.Hour)
	j, err := eng.ScheduleJob(context.Background(), "custom", json.RawMessage(`{}`), at,
		job.WithPriority(job.PriorityHigh),
		job.WithMaxRetries(0), // explicit zero disables retries
		job.WithRetryDelay(5*time.Second),
		job.WithTimeout(10*time.Second),
		job.WithUser("alice"),
	)
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	if j.Priority != job.PriorityHigh {
		t.Errorf("Priority = %v, want high", j.Priority)
	}
	if j.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0 (explicit)", j.MaxRetries)
	}
	if j.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v", j.RetryDelay)
	}
	if j.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", j.Timeout)
	}
	if j.UserID != "alice" {
		t.Errorf("UserID = %q", j.UserID)
	}
	if !j.ScheduledAt.Equal(at) {
		t.Errorf("ScheduledAt = %v, want %v", j.ScheduledAt, at)
	}
}

func TestScheduleJob_RequiresName(t *testing.T) {
	eng, _ := newEngine(t)

	_, err := eng.ScheduleJob(context.Background(), "", nil, time.Time{})
	if !errors.Is(err, tempo.ErrMissingName) {
		t.Fatalf("expected ErrMissingName, got %v", err)
	}
}

func TestScheduleJob_CapturesUserFromContext(t *testing.T) {
	eng, _ := newEngine(t)

	ctx := scope.WithUser(context.Background(), "bob")
	j, err := eng.ScheduleJob(ctx, "owned", nil, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	if j.UserID != "bob" {
		t.Errorf("UserID = %q, want bob (captured from context)", j.UserID)
	}
}

// ──────────────────────────────────────────────────
// Retry flow
// ──────────────────────────────────────────────────

func TestEngine_RetryFlow(t *testing.T) {
	eng, s := newEngine(t, engine.WithBackoff(backoff.Constant(0)))

	var calls atomic.Int32
	eng.RegisterJobHandler("flaky", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return nil, nil
	})

	j, err := eng.ScheduleJob(context.Background(), "flaky", nil, time.Time{}, job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	now := time.Now().UTC()
	eng.Tick(context.Background(), now)
	waitFor(t, func() bool { return calls.Load() == 1 }, "first attempt never ran")
	waitFor(t, func() bool {
		got, _ := s.GetJob(context.Background(), j.ID)
		return got.Status == job.StatusPending
	}, "failed job never returned to pending")

	// With a zero-delay strategy the retry is due immediately.
	eng.Tick(context.Background(), time.Now().UTC())
	waitFor(t, func() bool { return calls.Load() == 2 }, "retry never ran")
	waitFor(t, func() bool {
		got, _ := s.GetJob(context.Background(), j.ID)
		return got.Status == job.StatusCompleted && got.Attempts == 2
	}, "retried job never completed")
}

func TestEngine_RetryBudgetExhausted(t *testing.T) {
	eng, s := newEngine(t, engine.WithBackoff(backoff.Constant(0)))

	var calls atomic.Int32
	eng.RegisterJobHandler("doomed", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		calls.Add(1)
		return nil, errors.New("always fails")
	})

	j, err := eng.ScheduleJob(context.Background(), "doomed", nil, time.Time{}, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	// Initial attempt plus one retry.
	for range 3 {
		eng.Tick(context.Background(), time.Now().UTC())
		time.Sleep(50 * time.Millisecond)
	}

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}
	if calls.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", calls.Load())
	}

	failed, err := eng.ListFailedJobs(context.Background(), "")
	if err != nil {
		t.Fatalf("ListFailedJobs: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed job, got %d", len(failed))
	}
}

// ──────────────────────────────────────────────────
// Cancel and manual retry
// ──────────────────────────────────────────────────

func TestEngine_CancelJob(t *testing.T) {
	eng, s := newEngine(t)

	var cancelled atomic.Bool
	eng.Subscribe(event.KindJobCancelled, func(event.Event) { cancelled.Store(true) })

	j, err := eng.ScheduleJob(context.Background(), "later", nil, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	ok, err := eng.CancelJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !ok {
		t.Fatal("CancelJob = false, want true for pending job")
	}
	if !cancelled.Load() {
		t.Error("cancelled event not published")
	}
	if _, err := s.GetJob(context.Background(), j.ID); !errors.Is(err, tempo.ErrJobNotFound) {
		t.Fatalf("expected job deleted, got %v", err)
	}

	// Cancelling again (now absent) reports false without error.
	ok, err = eng.CancelJob(context.Background(), j.ID)
	if err != nil || ok {
		t.Fatalf("CancelJob(absent) = %v, %v; want false, nil", ok, err)
	}
}

func TestEngine_CancelJob_NotPending(t *testing.T) {
	eng, _ := newEngine(t)

	eng.RegisterJobHandler("quick", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		return nil, nil
	})
	j, err := eng.ScheduleJob(context.Background(), "quick", nil, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	eng.Tick(context.Background(), time.Now().UTC())
	waitFor(t, func() bool {
		got, _ := eng.GetJob(context.Background(), j.ID)
		return got.Status == job.StatusCompleted
	}, "job never completed")

	ok, err := eng.CancelJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if ok {
		t.Fatal("CancelJob = true for completed job, want false")
	}
}

func TestEngine_RetryJob(t *testing.T) {
	eng, s := newEngine(t)

	eng.RegisterJobHandler("doomed", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		return nil, errors.New("nope")
	})
	j, err := eng.ScheduleJob(context.Background(), "doomed", nil, time.Time{}, job.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	eng.Tick(context.Background(), time.Now().UTC())
	waitFor(t, func() bool {
		got, _ := s.GetJob(context.Background(), j.ID)
		return got.Status == job.StatusFailed
	}, "job never failed")

	retried, err := eng.RetryJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.Status != job.StatusPending {
		t.Errorf("Status = %q, want pending", retried.Status)
	}
	if retried.Attempts != 1 {
		t.Errorf("Attempts = %d, want preserved at 1", retried.Attempts)
	}
	if !retried.ScheduledAt.Equal(j.ScheduledAt) {
		t.Errorf("ScheduledAt = %v, want preserved %v", retried.ScheduledAt, j.ScheduledAt)
	}

	// Only failed jobs can be retried manually.
	_, err = eng.RetryJob(context.Background(), j.ID)
	if !errors.Is(err, tempo.ErrJobNotFailed) {
		t.Fatalf("expected ErrJobNotFailed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Recurring schedules
// ──────────────────────────────────────────────────

func TestScheduleRecurring_InvalidExpressionFailsFast(t *testing.T) {
	eng, _ := newEngine(t)

	_, err := eng.ScheduleRecurringJob(context.Background(), "bad", nil, "not a cron")
	if !errors.Is(err, tempo.ErrInvalidExpression) {
		t.Fatalf("expected ErrInvalidExpression, got %v", err)
	}

	// Nothing was persisted.
	schedules, listErr := eng.ListSchedulesByUser(context.Background(), "", nil)
	if listErr != nil {
		t.Fatalf("ListSchedulesByUser: %v", listErr)
	}
	if len(schedules) != 0 {
		t.Fatalf("expected no schedules, got %d", len(schedules))
	}
}

func TestScheduleRecurring_MaterializesFirstOccurrence(t *testing.T) {
	eng, s := newEngine(t)

	sched, err := engine.ScheduleRecurring(context.Background(), eng, "minutely",
		map[string]int{"n": 1}, "* * * * *")
	if err != nil {
		t.Fatalf("ScheduleRecurring: %v", err)
	}
	if !sched.IsActive {
		t.Error("new schedule should be active")
	}

	got, err := eng.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.LastExecutedAt == nil {
		t.Error("LastExecutedAt not stamped by eager materialization")
	}

	// The first occurrence exists as a pending job due within the period.
	due, err := s.ListPendingDue(context.Background(), time.Now().UTC().Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("ListPendingDue: %v", err)
	}
	if len(due) != 1 || due[0].Name != "minutely" {
		t.Fatalf("expected one pending occurrence, got %d", len(due))
	}
	if string(due[0].Data) != `{"n":1}` {
		t.Errorf("occurrence data = %s", due[0].Data)
	}
}

func TestScheduleRecurring_OneJobPerOccurrence(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	eng.RegisterJobHandler("digest", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		return nil, nil
	})

	_, err := eng.ScheduleRecurringJob(ctx, "digest", nil, "* * * * *", job.WithUser("user-9"))
	if err != nil {
		t.Fatalf("ScheduleRecurringJob: %v", err)
	}

	jobs, err := eng.ListJobsByUser(ctx, "user-9", nil)
	if err != nil {
		t.Fatalf("ListJobsByUser: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 eager occurrence, got %d", len(jobs))
	}
	firstRun := jobs[0].ScheduledAt

	// A tick after the first boundary has elapsed must not materialize the
	// eager occurrence a second time.
	eng.Tick(ctx, firstRun.Add(30*time.Second))
	jobs, err = eng.ListJobsByUser(ctx, "user-9", nil)
	if err != nil {
		t.Fatalf("ListJobsByUser: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("first occurrence materialized %d times, want 1", len(jobs))
	}

	// The next boundary yields exactly one more job, one per occurrence.
	eng.Tick(ctx, firstRun.Add(90*time.Second))
	jobs, err = eng.ListJobsByUser(ctx, "user-9", nil)
	if err != nil {
		t.Fatalf("ListJobsByUser: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs after the second boundary, got %d", len(jobs))
	}
	if jobs[0].ScheduledAt.Equal(jobs[1].ScheduledAt) {
		t.Fatalf("occurrence %v materialized twice", jobs[0].ScheduledAt)
	}
}

func TestEngine_PauseAndResumeSchedule(t *testing.T) {
	eng, _ := newEngine(t)

	sched, err := eng.ScheduleRecurringJob(context.Background(), "toggled", nil, "0 * * * *")
	if err != nil {
		t.Fatalf("ScheduleRecurringJob: %v", err)
	}

	if err := eng.PauseSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("PauseSchedule: %v", err)
	}
	got, _ := eng.GetSchedule(context.Background(), sched.ID)
	if got.IsActive {
		t.Error("schedule still active after pause")
	}

	if err := eng.ResumeSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("ResumeSchedule: %v", err)
	}
	got, _ = eng.GetSchedule(context.Background(), sched.ID)
	if !got.IsActive {
		t.Error("schedule not active after resume")
	}
}

func TestEngine_DeleteSchedule(t *testing.T) {
	eng, _ := newEngine(t)

	sched, err := eng.ScheduleRecurringJob(context.Background(), "doomed", nil, "0 0 * * *")
	if err != nil {
		t.Fatalf("ScheduleRecurringJob: %v", err)
	}
	if err := eng.DeleteSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if _, err := eng.GetSchedule(context.Background(), sched.ID); !errors.Is(err, tempo.ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestEngine_FullCron(t *testing.T) {
	eng, s := newEngine(t, engine.WithFullCron())

	// An expression the default calculator only handles via fallback is
	// evaluated exactly under the full parser.
	sched, err := eng.ScheduleRecurringJob(context.Background(), "quarter-hourly", nil, "*/15 * * * *")
	if err != nil {
		t.Fatalf("ScheduleRecurringJob: %v", err)
	}
	_ = sched

	due, err := s.ListPendingDue(context.Background(), time.Now().UTC().Add(16*time.Minute), 0)
	if err != nil {
		t.Fatalf("ListPendingDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected the first occurrence within 15 minutes, got %d jobs", len(due))
	}
	if m := due[0].ScheduledAt.Minute() % 15; m != 0 {
		t.Errorf("occurrence minute = %d, want a quarter-hour boundary", due[0].ScheduledAt.Minute())
	}

	// Garbage is rejected by the full parser too.
	if _, err := eng.ScheduleRecurringJob(context.Background(), "bad", nil, "61 * * * *"); !errors.Is(err, tempo.ErrInvalidExpression) {
		t.Fatalf("expected ErrInvalidExpression, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Events and listing
// ──────────────────────────────────────────────────

func TestEngine_SubscribeReceivesLifecycle(t *testing.T) {
	eng, _ := newEngine(t)

	var scheduled, completed atomic.Int32
	eng.Subscribe(event.KindJobScheduled, func(event.Event) { scheduled.Add(1) })
	sub := eng.Subscribe(event.KindJobCompleted, func(event.Event) { completed.Add(1) })

	eng.RegisterJobHandler("noop", func(_ context.Context, _ *job.Job) (json.RawMessage, error) {
		return nil, nil
	})

	if _, err := eng.ScheduleJob(context.Background(), "noop", nil, time.Time{}); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	if scheduled.Load() != 1 {
		t.Errorf("scheduled events = %d, want 1", scheduled.Load())
	}

	eng.Tick(context.Background(), time.Now().UTC())
	waitFor(t, func() bool { return completed.Load() == 1 }, "completed event never received")

	// After cancelling the subscription, further completions are invisible.
	sub.Cancel()
	if _, err := eng.ScheduleJob(context.Background(), "noop", nil, time.Time{}); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	eng.Tick(context.Background(), time.Now().UTC())
	time.Sleep(100 * time.Millisecond)
	if completed.Load() != 1 {
		t.Errorf("completed events = %d after cancel, want still 1", completed.Load())
	}
}

func TestEngine_ListJobsByUser(t *testing.T) {
	eng, _ := newEngine(t)

	for range 2 {
		if _, err := eng.ScheduleJob(context.Background(), "mine", nil, time.Now().UTC().Add(time.Hour), job.WithUser("alice")); err != nil {
			t.Fatalf("ScheduleJob: %v", err)
		}
	}
	if _, err := eng.ScheduleJob(context.Background(), "theirs", nil, time.Now().UTC().Add(time.Hour), job.WithUser("bob")); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	jobs, err := eng.ListJobsByUser(context.Background(), "alice", nil)
	if err != nil {
		t.Fatalf("ListJobsByUser: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs for alice, got %d", len(jobs))
	}

	pending := job.StatusPending
	jobs, err = eng.ListJobsByUser(context.Background(), "alice", &pending)
	if err != nil {
		t.Fatalf("ListJobsByUser(pending): %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 pending jobs for alice, got %d", len(jobs))
	}
}
