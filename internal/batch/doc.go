// Package batch orchestrates batch harvesting sessions: creating and
// resuming persisted sessions, draining their pending items through a
// bounded worker pool, and exposing the management surface (status, list,
// stop, cleanup) consumed by the CLI.
//
// Every worker passes through the shared rate limiter before invoking the
// item processor, so pacing and identity rotation are enforced globally
// across the pool. Processor failures are absorbed at the worker boundary
// and recorded on the item; only orchestration errors (e.g., a failed
// persistence write) fail the whole session.
//
// Design decision: A single Run invocation drains the snapshot of items
// that are pending when it starts. Items requeued to PENDING by a mid-run
// failure are picked up by the next Run on the same session, not retried in
// a loop within the invocation. An explicit resume makes retry storms
// impossible and keeps each invocation's work set bounded and predictable.
package batch
