// Package metrics exposes billing and webhook instrumentation to
// Prometheus. A Metrics value implements the observer hooks of the payment,
// billing, subscription, webhook and queue packages.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

const namespace = "billing"

const maxLabelLen = 64

// label keeps label values short and non-empty.
func label(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

type Metrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	attemptAmount   *prometheus.CounterVec

	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	sweepResults  *prometheus.CounterVec

	transitions *prometheus.CounterVec

	webhooks *prometheus.CounterVec

	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "attempts_total",
			Help:      "Finalized billing attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "gateway_duration_seconds",
			Help:      "Gateway charge latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		attemptAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "charged_minor_units_total",
			Help:      "Successfully charged amount in minor units by currency.",
		}, []string{"currency"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Completed billing sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Billing sweep duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		sweepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "subscriptions_total",
			Help:      "Subscriptions handled by the sweep by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "transitions_total",
			Help:      "Applied subscription status transitions.",
		}, []string{"from", "to", "event"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events by type and resulting status.",
		}, []string{"type", "status"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Finished queue task runs by name and result.",
		}, []string{"task", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "Queue task run duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.attempts, m.attemptDuration, m.attemptAmount,
		m.sweeps, m.sweepDuration, m.sweepResults,
		m.transitions,
		m.webhooks,
		m.tasks, m.taskDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAttempt implements payment.Observer.
func (m *Metrics) ObserveAttempt(a payment.Attempt, took time.Duration) {
	m.attempts.WithLabelValues(label(string(a.Kind)), label(string(a.Outcome))).Inc()
	m.attemptDuration.WithLabelValues(label(string(a.Outcome))).Observe(took.Seconds())
	if a.Succeeded() && a.Amount > 0 {
		m.attemptAmount.WithLabelValues(label(a.Currency)).Add(float64(a.Amount))
	}
}

// ObserveSweep implements billing.Observer.
func (m *Metrics) ObserveSweep(r billing.Report) {
	m.sweeps.Inc()
	m.sweepDuration.Observe(r.Duration.Seconds())
	for result, n := range map[string]int{
		"charged":   r.Charged,
		"failed":    r.Failed,
		"expired":   r.Expired,
		"cancelled": r.Cancelled,
		"skipped":   r.Skipped,
		"errored":   r.Errored,
	} {
		if n > 0 {
			m.sweepResults.WithLabelValues(result).Add(float64(n))
		}
	}
}

// ObserveTransition matches subscription.TransitionObserver.
func (m *Metrics) ObserveTransition(from, to subscription.Status, event subscription.Event) {
	m.transitions.WithLabelValues(label(string(from)), label(string(to)), label(string(event))).Inc()
}

// ObserveWebhook implements webhook.Observer.
func (m *Metrics) ObserveWebhook(eventType string, status webhook.Status) {
	m.webhooks.WithLabelValues(label(eventType), label(string(status))).Inc()
}

// ObserveTask matches queue.TaskObserver.
func (m *Metrics) ObserveTask(taskName string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.tasks.WithLabelValues(label(taskName), result).Inc()
	m.taskDuration.WithLabelValues(label(taskName)).Observe(d.Seconds())
}

// Middleware records request counts and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var (
	_ payment.Observer = (*Metrics)(nil)
	_ billing.Observer = (*Metrics)(nil)
	_ webhook.Observer = (*Metrics)(nil)
)
