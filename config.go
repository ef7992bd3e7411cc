package tempo

import "time"

// Config holds configuration for the Scheduler.
type Config struct {
	// TickSchedule is the cron-style expression driving the dispatch tick.
	// Standard 5-field expressions and descriptors ("@every 5s") are accepted.
	TickSchedule string

	// MaxConcurrentJobs is the maximum number of jobs executing at once.
	// Must be at least 1.
	MaxConcurrentJobs int

	// DefaultMaxRetries is the retry budget applied to jobs that do not
	// override it.
	DefaultMaxRetries int

	// DefaultRetryDelay is the delay before a failed job becomes due again,
	// applied to jobs that do not override it.
	DefaultRetryDelay time.Duration

	// DefaultTimeout is the per-job execution deadline applied to jobs that
	// do not override it.
	DefaultTimeout time.Duration

	// ShutdownTimeout is the maximum time Shutdown waits for in-flight jobs
	// before abandoning them.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickSchedule:      "@every 5s",
		MaxConcurrentJobs: 10,
		DefaultMaxRetries: 3,
		DefaultRetryDelay: 1 * time.Minute,
		DefaultTimeout:    5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
	}
}
