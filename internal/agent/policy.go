// ABOUTME: Reconnect policies deciding how long an agent waits before redialing.
// ABOUTME: FixedDelay is the default; ExponentialBackoff and MaxAttempts are opt-in.

package agent

import (
	"math"
	"time"
)

// DefaultReconnectDelay is the FixedDelay used when no policy is configured.
const DefaultReconnectDelay = time.Second

// ReconnectPolicy decides the delay before reconnect attempt n (starting at 1
// after the first failure). Returning false stops reconnecting for good.
type ReconnectPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// FixedDelay retries forever with the same delay.
type FixedDelay struct {
	Delay time.Duration
}

// Next implements ReconnectPolicy.
func (p FixedDelay) Next(int) (time.Duration, bool) {
	if p.Delay <= 0 {
		return DefaultReconnectDelay, true
	}
	return p.Delay, true
}

// ExponentialBackoff multiplies the delay on every consecutive failure up to Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Next implements ReconnectPolicy.
func (p ExponentialBackoff) Next(attempt int) (time.Duration, bool) {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	limit := p.Max
	if limit <= 0 {
		limit = 30 * time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if d >= float64(limit) || math.IsInf(d, 0) {
		return limit, true
	}
	return time.Duration(d), true
}

// MaxAttempts wraps a policy and gives up after Attempts consecutive failures.
type MaxAttempts struct {
	Policy   ReconnectPolicy
	Attempts int
}

// Next implements ReconnectPolicy.
func (p MaxAttempts) Next(attempt int) (time.Duration, bool) {
	if attempt > p.Attempts {
		return 0, false
	}
	inner := p.Policy
	if inner == nil {
		inner = FixedDelay{}
	}
	return inner.Next(attempt)
}
