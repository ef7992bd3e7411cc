package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/reverb-labs/tempo/id"
	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/middleware"
	"github.com/reverb-labs/tempo/scope"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (json.RawMessage, error) {
		order = append(order, "mw1-before")
		out, err := next(ctx)
		order = append(order, "mw1-after")
		return out, err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (json.RawMessage, error) {
		order = append(order, "mw2-before")
		out, err := next(ctx)
		order = append(order, "mw2-after")
		return out, err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{Name: "test", ID: id.NewJobID()}
	handler := func(_ context.Context) (json.RawMessage, error) {
		order = append(order, "handler")
		return nil, nil
	}

	_, err := chain(context.Background(), j, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) (json.RawMessage, error) {
		called = true
		return nil, nil
	}

	_, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) (json.RawMessage, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	_, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) (json.RawMessage, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestChain_PropagatesResult(t *testing.T) {
	chain := middleware.Chain(middleware.Recover(slog.Default()))

	out, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("out = %s, want {\"ok\":true}", out)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{Name: "panicky", ID: id.NewJobID()}

	_, err := mw(context.Background(), j, func(_ context.Context) (json.RawMessage, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in job panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{Name: "normal", ID: id.NewJobID()}

	called := false
	_, err := mw(context.Background(), j, func(_ context.Context) (json.RawMessage, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	j := &job.Job{Name: "log-test", ID: id.NewJobID()}

	want := errors.New("boom")
	_, err := mw(context.Background(), j, func(_ context.Context) (json.RawMessage, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestScope_RestoresUser(t *testing.T) {
	mw := middleware.Scope()
	j := &job.Job{Name: "scoped", ID: id.NewJobID(), UserID: "user-7"}

	var seen string
	_, err := mw(context.Background(), j, func(ctx context.Context) (json.RawMessage, error) {
		seen = scope.Capture(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "user-7" {
		t.Errorf("handler saw user %q, want %q", seen, "user-7")
	}
}
