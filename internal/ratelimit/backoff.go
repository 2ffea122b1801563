package ratelimit

import "time"

// Params holds the tunables for pacing delay computation.
type Params struct {
	// BaseDelay is the minimum spacing between successive requests.
	BaseDelay time.Duration

	// JitterRange is the maximum absolute jitter added to or subtracted
	// from BaseDelay. The computed delay never drops below BaseDelay;
	// negative jitter only cancels positive jitter from earlier draws.
	JitterRange time.Duration

	// MaxDelay is the ceiling applied after backoff multiplication.
	MaxDelay time.Duration

	// BackoffCap bounds the backoff multiplier: after failures the delay
	// is multiplied by min(2^failures, BackoffCap).
	BackoffCap int
}

// Delay computes the pacing delay for the next request.
//
// delay = max(BaseDelay, BaseDelay + uniform(-JitterRange, +JitterRange)),
// multiplied by min(2^failures, BackoffCap) when failures > 0, and
// clamped to MaxDelay.
//
// jitterUnit supplies the randomness and must be in [0, 1); it maps linearly
// onto [-JitterRange, +JitterRange). Passing it in keeps the function pure.
func Delay(p Params, failures int, jitterUnit float64) time.Duration {
	jitter := time.Duration((jitterUnit*2 - 1) * float64(p.JitterRange))

	delay := p.BaseDelay + jitter
	if delay < p.BaseDelay {
		delay = p.BaseDelay
	}

	if failures > 0 && p.BackoffCap > 0 {
		mult := 1
		for i := 0; i < failures && mult < p.BackoffCap; i++ {
			mult <<= 1
		}
		if mult > p.BackoffCap {
			mult = p.BackoffCap
		}
		delay *= time.Duration(mult)
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
