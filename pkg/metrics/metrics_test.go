package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/metrics"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
	"github.com/dmitrymomot/billing/pkg/webhook"
)

func TestMetrics_Observers(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	m.ObserveAttempt(payment.Attempt{Kind: payment.KindRenewal, Outcome: payment.OutcomeSuccess, Amount: 5000, Currency: "USD"}, 200*time.Millisecond)
	m.ObserveAttempt(payment.Attempt{Kind: payment.KindRetry, Outcome: payment.OutcomeDeclined, Amount: 5000, Currency: "USD"}, time.Second)
	m.ObserveSweep(billing.Report{Duration: time.Second, Due: 3, Charged: 2, Failed: 1})
	m.ObserveTransition(subscription.StatusTrialing, subscription.StatusActive, subscription.EventChargeSucceeded)
	m.ObserveWebhook("payment.succeeded", webhook.StatusDuplicate)
	m.ObserveTask("webhook.ProcessEvent", errors.New("boom"), time.Millisecond)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`billing_payment_attempts_total{kind="renewal",outcome="success"} 1`,
		`billing_payment_attempts_total{kind="retry",outcome="declined"} 1`,
		`billing_payment_charged_minor_units_total{currency="USD"} 5000`,
		`billing_sweep_runs_total 1`,
		`billing_sweep_subscriptions_total{result="charged"} 2`,
		`billing_subscription_transitions_total{event="charge_succeeded",from="trialing",to="active"} 1`,
		`billing_webhook_events_total{status="duplicate",type="payment.succeeded"} 1`,
		`billing_queue_tasks_total{result="error",task="webhook.ProcessEvent"} 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestMetrics_EmptyLabels(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	m.ObserveWebhook("", webhook.StatusRejected)
	assert.Contains(t, scrape(t, m.Handler()), `billing_webhook_events_total{status="rejected",type="unknown"} 1`)
}

func TestMetrics_Middleware(t *testing.T) {
	t.Parallel()
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/subscriptions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "billing_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, scrape(t, m.Handler()), `billing_http_requests_total{code="404",method="GET",route="/subscriptions/{id}"} 2`)
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}
