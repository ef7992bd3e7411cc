// Package event provides the in-process lifecycle event bus. The engine
// publishes a typed event for every job transition; observers subscribe
// per kind and receive a disposable subscription handle for teardown.
package event

import (
	"time"

	"github.com/reverb-labs/tempo/job"
)

// Kind enumerates the lifecycle transitions published by the engine.
type Kind string

const (
	// KindJobScheduled fires when a job is created.
	KindJobScheduled Kind = "job_scheduled"
	// KindJobStarted fires immediately before a handler invocation.
	KindJobStarted Kind = "job_started"
	// KindJobCompleted fires on successful completion.
	KindJobCompleted Kind = "job_completed"
	// KindJobFailed fires on handler error, panic, timeout, or a missing
	// handler.
	KindJobFailed Kind = "job_failed"
	// KindJobRetried fires when a failed job returns to pending.
	KindJobRetried Kind = "job_retried"
	// KindJobCancelled fires when a pending job is cancelled.
	KindJobCancelled Kind = "job_cancelled"
)

// Event is the typed payload delivered to subscribers. Result is set only
// for kinds produced by an execution outcome (completed, failed, retried).
type Event struct {
	Kind   Kind        `json:"kind"`
	Job    *job.Job    `json:"job"`
	Result *job.Result `json:"result,omitempty"`
	At     time.Time   `json:"at"`
}
