// Package ratelimit implements the shared request-pacing resource used by
// every worker in a harvesting run: minimum spacing with jitter between
// successive outbound requests, exponential backoff driven by consecutive
// failures, periodic identity rotation, and soft-block detection.
//
// A single Limiter is shared across all workers. Only the timestamp and
// counter bookkeeping happens under its lock; the network call that follows
// Wait happens outside it, so pacing decisions are serialized without
// serializing the I/O itself.
//
// Design decision: The delay arithmetic lives in a pure function (Delay)
// that takes its randomness as an argument. This keeps the backoff behavior
// property-testable without real time, goroutines, or a seeded global source.
package ratelimit
