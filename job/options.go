package job

import "time"

// Options configures per-job behavior such as retries, priority, and timeout.
// Zero fields fall back to the scheduler-level defaults at enqueue time.
type Options struct {
	// Priority determines dispatch ordering among due jobs.
	Priority Priority

	// MaxRetries is the number of automatic retries after the initial attempt.
	MaxRetries int

	// RetryDelay is how long after a failure the job becomes due again.
	RetryDelay time.Duration

	// Timeout is the maximum duration a single attempt may run.
	Timeout time.Duration

	// UserID tags the job with an owner. Filtering only, no behavioral effect.
	UserID string

	// maxRetriesSet distinguishes an explicit zero from "use the default".
	maxRetriesSet bool
}

// MaxRetriesSet reports whether MaxRetries was set explicitly.
func (o Options) MaxRetriesSet() bool { return o.maxRetriesSet }

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithPriority sets the job priority.
func WithPriority(p Priority) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithMaxRetries sets the number of automatic retries after the initial
// attempt. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
		o.maxRetriesSet = true
	}
}

// WithRetryDelay sets the delay before a failed job becomes due again.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}

// WithTimeout sets the maximum execution duration for one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithUser tags the job with an owning user id.
func WithUser(userID string) Option {
	return func(o *Options) {
		o.UserID = userID
	}
}
