package webhook

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/backoff"
	"github.com/dmitrymomot/billing/pkg/notify"
)

// Observer receives the outcome of every Receive call and processing run.
type Observer interface {
	ObserveWebhook(eventType string, status Status)
}

type settings struct {
	now        func() time.Time
	logger     *slog.Logger
	observer   Observer
	maxRetries int
	staleAfter time.Duration
	queue      string
	backoff    backoff.Strategy
	alerter    notify.Alerter
}

func defaults() settings {
	return settings{
		now:        time.Now,
		logger:     slog.Default(),
		maxRetries: 5,
		staleAfter: 10 * time.Minute,
		backoff: backoff.Exponential{
			InitialInterval: 30 * time.Second,
			MaxInterval:     time.Hour,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
	}
}

// Option configures a Pipeline or a Processor.
type Option func(*settings)

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMaxRetries sets how many processing attempts an event gets before it
// is failed_terminal.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithQueue routes ProcessEvent tasks to a named queue.
func WithQueue(name string) Option {
	return func(s *settings) { s.queue = name }
}

// WithBackoff sets the delay before a failed event is processed again.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *settings) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithAlerter sets who is told about terminally failed events.
func WithAlerter(a notify.Alerter) Option {
	return func(s *settings) {
		if a != nil {
			s.alerter = a
		}
	}
}

// WithConfig applies the retry settings of cfg.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		WithMaxRetries(cfg.MaxRetries)(s)
		WithStaleAfter(cfg.StaleAfter)(s)
	}
}

func (s settings) observe(eventType string, status Status) {
	if s.observer != nil {
		s.observer.ObserveWebhook(eventType, status)
	}
}
