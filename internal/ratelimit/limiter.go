package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Rotation policy defaults. A fresh identity every 50 requests or 30 minutes
// keeps any single profile's footprint small; 3 straight failures usually
// means the current profile has been flagged.
const (
	DefaultRotateAfterRequests = 50
	DefaultRotateMaxAge        = 30 * time.Minute
	DefaultRotateAfterFailures = 3

	// DefaultSoftBlockCooldown is the extra pause imposed after a soft block,
	// on top of regular backoff.
	DefaultSoftBlockCooldown = 30 * time.Second
)

// Limiter is the shared pacing resource. All workers call Wait before each
// outbound request, so the limiter guarantees minimum spacing globally across
// the pool, not per worker.
//
// The lock covers only bookkeeping (timestamps, counters, identity index).
// Sleeping happens outside the lock on a snapshot of the computed deadline,
// and the deadline is re-checked after waking because another worker may
// have claimed the slot in the meantime.
type Limiter struct {
	mu sync.Mutex

	params Params
	rnd    *rand.Rand

	lastRequest         time.Time
	coolUntil           time.Time
	consecutiveFailures int

	identities            []Identity
	identityIdx           int
	requestsSinceRotation int
	lastRotation          time.Time
	rotations             int

	rotateAfterRequests int
	rotateMaxAge        time.Duration
	rotateAfterFailures int
	softBlockCooldown   time.Duration

	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithIdentities sets the identity rotation pool. An empty slice is ignored.
func WithIdentities(ids []Identity) Option {
	return func(l *Limiter) {
		if len(ids) > 0 {
			l.identities = ids
		}
	}
}

// WithRotationPolicy sets the identity rotation thresholds. Non-positive
// values keep the defaults.
func WithRotationPolicy(afterRequests int, maxAge time.Duration, afterFailures int) Option {
	return func(l *Limiter) {
		if afterRequests > 0 {
			l.rotateAfterRequests = afterRequests
		}
		if maxAge > 0 {
			l.rotateMaxAge = maxAge
		}
		if afterFailures > 0 {
			l.rotateAfterFailures = afterFailures
		}
	}
}

// WithSoftBlockCooldown sets the extra pause imposed after a soft block.
func WithSoftBlockCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.softBlockCooldown = d
		}
	}
}

// WithLimiterLogger sets a custom logger.
func WithLimiterLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRandSource sets the randomness source for jitter. Tests use this to
// make delays deterministic.
func WithRandSource(src rand.Source) Option {
	return func(l *Limiter) {
		l.rnd = rand.New(src) //nolint:gosec // jitter does not need crypto randomness
	}
}

// New creates a Limiter with the given pacing parameters.
func New(params Params, opts ...Option) *Limiter {
	l := &Limiter{
		params:              params,
		identities:          DefaultIdentities(),
		rotateAfterRequests: DefaultRotateAfterRequests,
		rotateMaxAge:        DefaultRotateMaxAge,
		rotateAfterFailures: DefaultRotateAfterFailures,
		softBlockCooldown:   DefaultSoftBlockCooldown,
		lastRotation:        time.Now(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.rnd == nil {
		l.rnd = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter does not need crypto randomness
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	return l
}

// Wait blocks the calling worker until the next request may proceed, then
// claims the slot by advancing the shared last-request timestamp. It returns
// early with the context's error if the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.maybeRotateLocked(now)

		delay := Delay(l.params, l.consecutiveFailures, l.rnd.Float64())
		next := l.lastRequest.Add(delay)
		if l.coolUntil.After(next) {
			next = l.coolUntil
		}

		if !now.Before(next) {
			l.lastRequest = now
			l.requestsSinceRotation++
			l.mu.Unlock()
			return nil
		}
		wait := next.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check: another worker may have claimed the slot.
		}
	}
}

// RecordSuccess resets the consecutive failure streak.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFailures = 0
}

// RecordFailure increments the consecutive failure streak, which feeds the
// backoff multiplier on the next Wait.
func (l *Limiter) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFailures++
}

// RecordSoftBlock treats a soft block as a failure with an extra cooldown
// and forces an immediate identity rotation.
func (l *Limiter) RecordSoftBlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.consecutiveFailures++
	cool := now.Add(l.softBlockCooldown)
	if cool.After(l.coolUntil) {
		l.coolUntil = cool
	}

	l.logger.Warn("soft block detected, rotating identity",
		"cooldown", l.softBlockCooldown,
		"consecutive_failures", l.consecutiveFailures,
	)
	l.rotateLocked(now)
}

// CurrentIdentity returns the identity profile outbound requests should
// currently carry.
func (l *Limiter) CurrentIdentity() Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identities[l.identityIdx]
}

// maybeRotateLocked rotates the identity when any rotation threshold is
// crossed. Callers must hold the lock.
func (l *Limiter) maybeRotateLocked(now time.Time) {
	due := l.requestsSinceRotation >= l.rotateAfterRequests ||
		now.Sub(l.lastRotation) >= l.rotateMaxAge ||
		l.consecutiveFailures >= l.rotateAfterFailures

	if due {
		l.rotateLocked(now)
	}
}

// rotateLocked advances to the next identity and resets the request counter
// and failure streak. Callers must hold the lock.
func (l *Limiter) rotateLocked(now time.Time) {
	l.identityIdx = (l.identityIdx + 1) % len(l.identities)
	l.requestsSinceRotation = 0
	l.consecutiveFailures = 0
	l.lastRotation = now
	l.rotations++

	l.logger.Debug("rotated identity",
		"identity", l.identities[l.identityIdx].Name,
		"rotations", l.rotations,
	)
}

// Stats is a snapshot of the limiter's observable state.
type Stats struct {
	// ConsecutiveFailures is the current failure streak.
	ConsecutiveFailures int

	// RequestsSinceRotation counts requests carried by the current identity.
	RequestsSinceRotation int

	// Rotations is the total number of identity rotations so far.
	Rotations int

	// Identity is the name of the current identity profile.
	Identity string
}

// Stats returns a snapshot of the limiter state for logging and reporting.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		ConsecutiveFailures:   l.consecutiveFailures,
		RequestsSinceRotation: l.requestsSinceRotation,
		Rotations:             l.rotations,
		Identity:              l.identities[l.identityIdx].Name,
	}
}
