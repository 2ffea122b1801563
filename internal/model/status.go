package model

// ItemStatus represents the state of a single batch item.
//
// Design decision: We use string constants rather than iota-based integers
// because these values are persisted in session snapshots. String values
// keep the stored JSON self-describing and stable across code changes
// that would reorder integer constants.
type ItemStatus string

const (
	// ItemPending means the item has been added but not yet picked up by a
	// worker, or has been requeued after a retryable failure.
	ItemPending ItemStatus = "PENDING"

	// ItemRunning means a worker currently owns the item and is processing it.
	ItemRunning ItemStatus = "RUNNING"

	// ItemCompleted means the item finished successfully. Terminal.
	ItemCompleted ItemStatus = "COMPLETED"

	// ItemFailed means the item exhausted its retry budget. Terminal.
	ItemFailed ItemStatus = "FAILED"
)

// Valid reports whether the status is one of the known item states.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemRunning, ItemCompleted, ItemFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the item can no longer transition.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// SessionStatus represents the aggregate state of a batch session.
type SessionStatus string

const (
	// SessionPending means the session exists but processing has not started.
	SessionPending SessionStatus = "PENDING"

	// SessionRunning means a worker pool is actively draining the session.
	SessionRunning SessionStatus = "RUNNING"

	// SessionCompleted means every item reached a terminal state and no stop
	// was requested. Terminal.
	SessionCompleted SessionStatus = "COMPLETED"

	// SessionFailed means an orchestration error escaped the worker pool.
	// Individual item failures never fail the session. Terminal.
	SessionFailed SessionStatus = "FAILED"

	// SessionPaused means processing stopped with work remaining and the
	// session is eligible for resume.
	SessionPaused SessionStatus = "PAUSED"

	// SessionCancelled means a user requested a stop. In-flight items were
	// allowed to finish; untouched items remain pending for a later resume.
	SessionCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionRunning, SessionCompleted,
		SessionFailed, SessionPaused, SessionCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether the session is pending or running.
// Cancelled and paused sessions hold resumable work but are not active.
func (s SessionStatus) Active() bool {
	return s == SessionPending || s == SessionRunning
}
