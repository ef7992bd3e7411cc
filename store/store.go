// Package store defines the aggregate persistence interface. The job and
// recurring subsystems each define their own store interface; the
// composite Store composes both plus lifecycle operations. A single
// backend (memory, postgres, redis, mongo) implements all of them.
package store

import (
	"context"

	"github.com/reverb-labs/tempo/job"
	"github.com/reverb-labs/tempo/recurring"
)

// Store is the aggregate persistence interface. A backend need only
// implement Store to satisfy every subsystem's persistence contract.
type Store interface {
	job.Store
	recurring.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
