package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billing/pkg/backoff"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	b := backoff.Exponential{InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_JitterStaysInRange(t *testing.T) {
	t.Parallel()

	b := backoff.Exponential{InitialInterval: 10 * time.Second, MaxInterval: time.Hour, Multiplier: 2, JitterFactor: 0.2}
	for range 100 {
		d := b.NextInterval(2)
		assert.GreaterOrEqual(t, d, 16*time.Second)
		assert.LessOrEqual(t, d, 24*time.Second)
	}
}

func TestLinearAndFixed(t *testing.T) {
	t.Parallel()

	l := backoff.Linear{Interval: 30 * time.Second, MaxInterval: 2 * time.Minute}
	assert.Equal(t, time.Duration(0), l.NextInterval(0))
	assert.Equal(t, 30*time.Second, l.NextInterval(1))
	assert.Equal(t, 90*time.Second, l.NextInterval(3))
	assert.Equal(t, 2*time.Minute, l.NextInterval(10))

	f := backoff.Fixed{Interval: 5 * time.Second}
	assert.Equal(t, time.Duration(0), f.NextInterval(0))
	assert.Equal(t, 5*time.Second, f.NextInterval(7))
}

func TestDefault(t *testing.T) {
	t.Parallel()

	d := backoff.Default().NextInterval(1)
	assert.GreaterOrEqual(t, d, 900*time.Millisecond)
	assert.LessOrEqual(t, d, 1100*time.Millisecond)
	assert.LessOrEqual(t, backoff.Default().NextInterval(20), 30*time.Second)
}
