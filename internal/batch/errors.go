package batch

import "errors"

// Management surface errors. Callers distinguish these with errors.Is;
// none of them indicates a bug, only a request that cannot be honored.
var (
	// ErrSessionNotFound is returned when a session ID matches neither a
	// live session nor a persisted snapshot.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose ID is
	// already in use.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionRunning is returned when running a session that already has
	// an active worker pool. A session is owned by one run at a time.
	ErrSessionRunning = errors.New("session is already running")
)
