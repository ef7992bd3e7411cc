// Package scope provides helpers to carry the owning user identity
// through context.Context. The engine captures the user at schedule time
// when none is given explicitly, and restores it into the handler's
// context so downstream code sees the same owner as the scheduling
// caller.
package scope

import "context"

type userKey struct{}

// WithUser attaches a user id to the context.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom extracts the user id from the context.
// Returns false if no user is present.
func UserFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok
}

// Capture returns the context's user id, or the empty string.
func Capture(ctx context.Context) string {
	v, _ := UserFrom(ctx)
	return v
}
