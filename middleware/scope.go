package middleware

import (
	"context"
	"encoding/json"

	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/scope"
)

// Scope returns middleware that restores the owning user from the job's
// UserID field into the context, so handlers see the same owner as the
// original scheduling caller.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (json.RawMessage, error) {
		ctx = scope.WithUser(ctx, j.UserID)
		return next(ctx)
	}
}
