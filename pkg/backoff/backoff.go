// Package backoff computes retry delays.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy returns the delay before retry number attempt, starting at 1.
// Implementations must be safe for concurrent use.
type Strategy interface {
	NextInterval(attempt int) time.Duration
}

// Exponential grows the delay by Multiplier per attempt, spreads it by
// ±JitterFactor and caps it at MaxInterval.
type Exponential struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e Exponential) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	ceiling := e.MaxInterval
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if e.JitterFactor > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if d > float64(ceiling) {
		d = float64(ceiling)
	}
	return time.Duration(d)
}

// Linear waits Interval*attempt, capped at MaxInterval.
type Linear struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

func (l Linear) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	step := l.Interval
	if step <= 0 {
		step = time.Second
	}
	ceiling := l.MaxInterval
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	return min(step*time.Duration(attempt), ceiling)
}

// Fixed always waits Interval.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Default is exponential from one second to thirty with 10% jitter.
func Default() Strategy {
	return Exponential{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
