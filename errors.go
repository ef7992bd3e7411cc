package tempo

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("tempo: no store configured")
	ErrStoreClosed = errors.New("tempo: store closed")

	// Lifecycle errors.
	ErrNotInitialized     = errors.New("tempo: scheduler not initialized")
	ErrAlreadyInitialized = errors.New("tempo: scheduler already initialized")

	// Not found errors.
	ErrJobNotFound      = errors.New("tempo: job not found")
	ErrScheduleNotFound = errors.New("tempo: recurring schedule not found")

	// State errors.
	ErrInvalidState = errors.New("tempo: invalid state transition")
	ErrJobNotFailed = errors.New("tempo: job is not in failed state")

	// Validation errors.
	ErrInvalidExpression = errors.New("tempo: invalid cron expression")
	ErrMissingName       = errors.New("tempo: job name is required")
)
