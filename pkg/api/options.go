package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/billing/pkg/httpserver"
)

const defaultMaxWebhookBytes = 1 << 20

// Metrics is the part of metrics.Metrics the router uses.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Option func(*router)

func WithLogger(l *slog.Logger) Option {
	return func(r *router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m Metrics) Option {
	return func(r *router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithReadinessChecks adds dependencies /readyz must find healthy.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(r *router) {
		r.checks = append(r.checks, checks...)
	}
}

func WithReadinessTimeout(d time.Duration) Option {
	return func(r *router) {
		if d > 0 {
			r.readyTimeout = d
		}
	}
}

// WithMaxWebhookBytes caps the size of processor notifications.
func WithMaxWebhookBytes(n int64) Option {
	return func(r *router) {
		if n > 0 {
			r.maxWebhookBytes = n
		}
	}
}
