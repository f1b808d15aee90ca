// ABOUTME: Tests for reconnect policies.
// ABOUTME: Checks fixed delays, exponential growth and caps, and attempt limits.

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedDelay(t *testing.T) {
	p := FixedDelay{Delay: 250 * time.Millisecond}
	for attempt := 1; attempt <= 100; attempt += 33 {
		d, ok := p.Next(attempt)
		assert.True(t, ok)
		assert.Equal(t, 250*time.Millisecond, d)
	}

	d, ok := FixedDelay{}.Next(1)
	assert.True(t, ok)
	assert.Equal(t, DefaultReconnectDelay, d)
}

func TestExponentialBackoff(t *testing.T) {
	p := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{500, time.Second},
	}
	for _, tt := range tests {
		d, ok := p.Next(tt.attempt)
		assert.True(t, ok)
		assert.Equal(t, tt.want, d, "attempt %d", tt.attempt)
	}
}

func TestMaxAttempts(t *testing.T) {
	p := MaxAttempts{Policy: FixedDelay{Delay: 10 * time.Millisecond}, Attempts: 2}

	d, ok := p.Next(1)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)

	_, ok = p.Next(2)
	assert.True(t, ok)

	_, ok = p.Next(3)
	assert.False(t, ok)
}
