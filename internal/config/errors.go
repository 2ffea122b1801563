package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoItems is returned when a run is requested with no item names.
	// This error occurs when neither a positional argument nor a --list
	// file provides work to do.
	ErrNoItems = errors.New("no items specified: pass item names or use --list")

	// ErrInvalidBaseDelay is returned when the base delay is not positive.
	// Pacing with a zero or negative floor would defeat the rate limiter.
	ErrInvalidBaseDelay = errors.New("invalid base delay: must be positive")

	// ErrInvalidJitter is returned when the jitter range is negative.
	// A negative range is invalid; use 0 to disable jitter.
	ErrInvalidJitter = errors.New("invalid jitter range: must be non-negative")

	// ErrInvalidMaxDelay is returned when the max delay is smaller than the
	// base delay. Backoff could never exceed its own floor.
	ErrInvalidMaxDelay = errors.New("invalid max delay: must be at least the base delay")

	// ErrInvalidMaxWorkers is returned when the worker count is not positive.
	// A pool of zero workers would never drain a session.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be positive")

	// ErrInvalidMaxRetries is returned when the retry budget is negative.
	// Use 0 to fail items on their first error.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidRPSCeiling is returned when the requests-per-second ceiling
	// is not positive.
	ErrInvalidRPSCeiling = errors.New("invalid rps ceiling: must be positive")
)
