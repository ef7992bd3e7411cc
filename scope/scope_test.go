package scope_test

import (
	"context"
	"testing"

	"github.com/reverb-labs/tempo/scope"
)

func TestWithUserAndCapture(t *testing.T) {
	ctx := context.Background()

	if got := scope.Capture(ctx); got != "" {
		t.Errorf("Capture on empty context = %q, want empty", got)
	}

	ctx = scope.WithUser(ctx, "user-42")
	if got := scope.Capture(ctx); got != "user-42" {
		t.Errorf("Capture = %q, want %q", got, "user-42")
	}

	userID, ok := scope.UserFrom(ctx)
	if !ok || userID != "user-42" {
		t.Errorf("UserFrom = (%q, %v), want (%q, true)", userID, ok, "user-42")
	}
}

func TestWithUser_EmptyIsNoop(t *testing.T) {
	ctx := scope.WithUser(context.Background(), "")
	if _, ok := scope.UserFrom(ctx); ok {
		t.Error("expected no user for empty id")
	}
}
