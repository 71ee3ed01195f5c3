package billing_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/locker"
	"github.com/dmitrymomot/billing/pkg/notify"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

var day0 = time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// gatewayMode selects the fake processor's verdict.
type gatewayMode int32

const (
	approve gatewayMode = iota
	decline
	fail
)

type env struct {
	subs     *subscription.MemoryStore
	attempts *payment.MemoryStore
	plans    *catalog.MemoryStore
	locks    *locker.Memory
	clock    *clock
	mode     *atomic.Int32
	calls    *atomic.Int32
	delay    time.Duration
	charger  *payment.Charger
	svc      *subscription.Service
	alerts   *[]notify.Alert
	alertsMu *sync.Mutex
}

func newEnv(t *testing.T, delay time.Duration) *env {
	t.Helper()

	e := &env{
		subs:     subscription.NewMemoryStore(),
		attempts: payment.NewMemoryStore(),
		plans:    catalog.NewMemoryStore(),
		locks:    locker.NewMemory(),
		clock:    &clock{now: day0},
		mode:     &atomic.Int32{},
		calls:    &atomic.Int32{},
		delay:    delay,
		alerts:   &[]notify.Alert{},
		alertsMu: &sync.Mutex{},
	}

	ctx := context.Background()
	require.NoError(t, e.plans.CreatePlan(ctx, catalog.Plan{
		Code: "premium_monthly", Name: "Premium", Amount: 2999, Currency: "USD",
		IntervalUnit: catalog.IntervalMonth, IntervalCount: 1, TrialDays: 7, Active: true,
	}))
	require.NoError(t, e.plans.CreatePlan(ctx, catalog.Plan{
		Code: "basic", Name: "Basic", Amount: 5000, Currency: "USD",
		IntervalUnit: catalog.IntervalMonth, IntervalCount: 1, Active: true,
	}))

	gw := payment.GatewayFunc(func(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
		e.calls.Add(1)
		if e.delay > 0 {
			time.Sleep(e.delay)
		}
		switch gatewayMode(e.mode.Load()) {
		case decline:
			return payment.ChargeResult{DeclineReason: "insufficient_funds"}, nil
		case fail:
			return payment.ChargeResult{}, errors.New("processor unavailable")
		}
		return payment.ChargeResult{Success: true, TransactionID: "txn_" + req.IdempotencyKey}, nil
	})
	e.charger = payment.NewCharger(gw, e.attempts, payment.WithClock(e.clock.Now))
	e.svc = subscription.NewService(e.subs, e.plans, e.charger,
		subscription.WithLocker(e.locks),
		subscription.WithClock(e.clock.Now))
	return e
}

func (e *env) engine(opts ...billing.Option) *billing.Engine {
	base := []billing.Option{
		billing.WithLocker(e.locks),
		billing.WithClock(e.clock.Now),
		billing.WithLockWait(time.Second),
		billing.WithAlerter(notify.AlerterFunc(func(_ context.Context, a notify.Alert) error {
			e.alertsMu.Lock()
			defer e.alertsMu.Unlock()
			*e.alerts = append(*e.alerts, a)
			return nil
		})),
	}
	return billing.NewEngine(e.subs, e.plans, e.charger, e.attempts, append(base, opts...)...)
}

func (e *env) create(t *testing.T, plan string, trial bool) subscription.Subscription {
	t.Helper()
	sub, err := e.svc.Create(context.Background(), subscription.CreateRequest{
		CustomerID:      "cus_1",
		PlanCode:        plan,
		PaymentMethodID: "pm_1",
		StartTrial:      &trial,
		Prorated:        true,
	})
	require.NoError(t, err)
	return sub
}

func (e *env) get(t *testing.T, sub subscription.Subscription) subscription.Subscription {
	t.Helper()
	s, err := e.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	return s
}

func (e *env) attemptsFor(t *testing.T, sub subscription.Subscription) []payment.Attempt {
	t.Helper()
	list, err := e.attempts.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	return list
}

func TestSweep_TrialConvertsToActive(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "premium_monthly", true)
	day7 := day0.AddDate(0, 0, 7)
	assert.Equal(t, subscription.StatusTrialing, sub.Status)
	assert.Equal(t, day7, sub.NextBillingDate)

	e.clock.Set(day0.AddDate(0, 0, 6))
	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)

	e.clock.Set(day7)
	report, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Charged)

	got := e.get(t, sub)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, day7, got.CurrentPeriodStart)
	assert.Equal(t, day7.AddDate(0, 1, 0), got.CurrentPeriodEnd)
	assert.Equal(t, got.CurrentPeriodEnd, got.NextBillingDate)
	assert.Equal(t, 2, got.BillingCycle)

	attempts := e.attemptsFor(t, sub)
	require.Len(t, attempts, 1)
	assert.Equal(t, payment.KindRenewal, attempts[0].Kind)
	assert.Equal(t, int64(2999), attempts[0].Amount)
	assert.Equal(t, payment.IdempotencyKey(sub.ID, 1, 0), attempts[0].IdempotencyKey)
}

func TestSweep_ConcurrentSweepsChargeOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 50*time.Millisecond)
	first, second := e.engine(), e.engine()

	subs := make([]subscription.Subscription, 5)
	for i := range subs {
		subs[i] = e.create(t, "premium_monthly", true)
	}
	e.clock.Set(day0.AddDate(0, 0, 7))

	var wg sync.WaitGroup
	reports := make([]billing.Report, 2)
	for i, eng := range []*billing.Engine{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := eng.Sweep(context.Background())
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, reports[0].Charged+reports[1].Charged)
	assert.Equal(t, int32(5), e.calls.Load())
	for _, sub := range subs {
		assert.Len(t, e.attemptsFor(t, sub), 1)
		assert.Equal(t, 2, e.get(t, sub).BillingCycle)
	}
}

func TestSweep_FailuresRetryThenExpire(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	due := sub.NextBillingDate
	e.mode.Store(int32(decline))

	e.clock.Set(due)
	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got := e.get(t, sub)
	assert.Equal(t, subscription.StatusPastDue, got.Status)
	assert.Equal(t, due.Add(24*time.Hour), got.NextBillingDate)

	// the second failure is a gateway error rather than a decline
	e.mode.Store(int32(fail))
	e.clock.Set(got.NextBillingDate)
	_, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	got = e.get(t, sub)
	assert.Equal(t, 2, got.RetryCount)

	e.mode.Store(int32(decline))
	for _, offset := range []time.Duration{72 * time.Hour, 120 * time.Hour} {
		e.clock.Set(due.Add(offset))
		_, err = eng.Sweep(context.Background())
		require.NoError(t, err)
	}

	got = e.get(t, sub)
	assert.Equal(t, subscription.StatusExpired, got.Status)

	attempts := e.attemptsFor(t, sub)
	require.Len(t, attempts, 5)
	assert.Equal(t, payment.KindInitial, attempts[0].Kind)
	assert.Equal(t, payment.KindRenewal, attempts[1].Kind)
	assert.Equal(t, payment.OutcomeDeclined, attempts[1].Outcome)
	assert.Equal(t, payment.KindRetry, attempts[2].Kind)
	assert.Equal(t, payment.OutcomeError, attempts[2].Outcome)
	keys := map[string]bool{}
	for _, a := range attempts {
		keys[a.IdempotencyKey] = true
	}
	assert.Len(t, keys, 5)

	e.alertsMu.Lock()
	defer e.alertsMu.Unlock()
	require.Len(t, *e.alerts, 1)
	assert.Equal(t, sub.ID.String(), (*e.alerts)[0].Fields["subscription_id"])

	e.clock.Set(due.AddDate(0, 2, 0))
	report, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

func TestSweep_RecoversFromPastDue(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	due := sub.NextBillingDate

	e.mode.Store(int32(decline))
	e.clock.Set(due)
	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)

	e.mode.Store(int32(approve))
	e.clock.Set(due.Add(24 * time.Hour))
	_, err = eng.Sweep(context.Background())
	require.NoError(t, err)

	got := e.get(t, sub)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.PastDueSince)
	assert.Equal(t, due, got.CurrentPeriodStart)
	assert.Equal(t, due.AddDate(0, 1, 0), got.NextBillingDate)
}

func TestSweep_CancelAtPeriodEnd(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "premium_monthly", true)
	_, err := e.svc.Cancel(context.Background(), sub.ID, true)
	require.NoError(t, err)

	e.clock.Set(sub.NextBillingDate)
	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, subscription.StatusCancelled, e.get(t, sub).Status)
	assert.Zero(t, e.calls.Load())
}

func TestSweep_UsesCreditBalance(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	stored := e.get(t, sub)
	stored.CreditBalance = 1200
	require.NoError(t, e.subs.Save(context.Background(), &stored))

	e.clock.Set(sub.NextBillingDate)
	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)

	attempts := e.attemptsFor(t, sub)
	require.Len(t, attempts, 2)
	assert.Equal(t, int64(3800), attempts[1].Amount)
	assert.Zero(t, e.get(t, sub).CreditBalance)
}

func TestSweep_SkipsLockedSubscription(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "premium_monthly", true)
	unlock, err := e.locks.TryLock(context.Background(), locker.SubscriptionKey(sub.ID.String()))
	require.NoError(t, err)

	e.clock.Set(sub.NextBillingDate)
	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, e.calls.Load())

	require.NoError(t, unlock(context.Background()))
	report, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
}

type panickingPlans struct{ subscription.PlanGetter }

func (panickingPlans) GetPlan(context.Context, string) (catalog.Plan, error) {
	panic("plan lookup exploded")
}

func TestSweep_IsolatesPanics(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	e.create(t, "premium_monthly", true)
	e.clock.Set(day0.AddDate(0, 0, 7))

	eng := billing.NewEngine(e.subs, panickingPlans{}, e.charger, e.attempts,
		billing.WithLocker(e.locks), billing.WithClock(e.clock.Now))

	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errored)
}

type reportRecorder struct {
	mu      sync.Mutex
	reports []billing.Report
}

func (r *reportRecorder) ObserveSweep(rep billing.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func TestSweep_ReportsToObserver(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	rec := &reportRecorder{}
	eng := e.engine(billing.WithObserver(rec))

	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.reports, 1)
	assert.Equal(t, day0, rec.reports[0].StartedAt)
}

func TestConfig_RetryPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, subscription.DefaultRetryPolicy(), billing.Config{}.RetryPolicy())

	cfg := billing.Config{RetrySchedule: []time.Duration{time.Hour}, RetryWindow: 2 * time.Hour}
	p := cfg.RetryPolicy()
	assert.Equal(t, 1, p.MaxRetries())
	assert.Equal(t, 2*time.Hour, p.Window)
}
