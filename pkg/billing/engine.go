// Package billing runs recurring charges. Engine.Sweep finds subscriptions
// whose next billing date has passed and charges each one under its
// per-subscription lock; Engine.ReconcileCharge folds asynchronous payment
// notifications into the same state so either order converges.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/locker"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notify"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

// Outcome is what one subscription run produced.
type Outcome string

const (
	OutcomeCharged   Outcome = "charged"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// Report summarizes a sweep.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Due       int           `json:"due"`
	Charged   int           `json:"charged"`
	Failed    int           `json:"failed"`
	Expired   int           `json:"expired"`
	Cancelled int           `json:"cancelled"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
}

func (r *Report) add(o Outcome) {
	switch o {
	case OutcomeCharged:
		r.Charged++
	case OutcomeFailed:
		r.Failed++
	case OutcomeExpired:
		r.Expired++
	case OutcomeCancelled:
		r.Cancelled++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Errored++
	}
}

// Observer receives sweep reports. Used for metrics.
type Observer interface {
	ObserveSweep(r Report)
}

// Engine drives the billing cycle.
type Engine struct {
	subs        subscription.Store
	plans       subscription.PlanGetter
	charger     subscription.Charger
	attempts    payment.AttemptStore
	lifecycle   *subscription.Lifecycle
	locker      locker.Locker
	lockWait    time.Duration
	concurrency int
	batchSize   int
	now         func() time.Time
	logger      *slog.Logger
	alerter     notify.Alerter
	observer    Observer
}

type Option func(*Engine)

func WithLifecycle(l *subscription.Lifecycle) Option {
	return func(e *Engine) {
		if l != nil {
			e.lifecycle = l
		}
	}
}

func WithLocker(l locker.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithLockWait bounds how long ReconcileCharge waits for a busy
// subscription. Sweeps never wait; they skip busy subscriptions.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.lockWait = d }
}

// WithConcurrency limits how many subscriptions a sweep processes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithBatchSize caps how many due subscriptions one sweep loads.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAlerter sends an alert whenever a subscription expires.
func WithAlerter(a notify.Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithConfig applies the tunables from cfg.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		WithConcurrency(cfg.Concurrency)(e)
		WithBatchSize(cfg.BatchSize)(e)
		WithLockWait(cfg.LockWait)(e)
	}
}

func NewEngine(subs subscription.Store, plans subscription.PlanGetter, charger subscription.Charger, attempts payment.AttemptStore, opts ...Option) *Engine {
	if subs == nil {
		panic("billing: subscription store is required")
	}
	if plans == nil {
		panic("billing: plan getter is required")
	}
	if charger == nil {
		panic("billing: charger is required")
	}
	if attempts == nil {
		panic("billing: attempt store is required")
	}
	e := &Engine{
		subs:        subs,
		plans:       plans,
		charger:     charger,
		attempts:    attempts,
		locker:      locker.NewMemory(),
		lockWait:    5 * time.Second,
		concurrency: 8,
		batchSize:   500,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lifecycle == nil {
		e.lifecycle = subscription.NewLifecycle()
	}
	e.logger = e.logger.With(logger.Component("billing"))
	return e
}

// Sweep processes every subscription due at the current time. A failure in
// one subscription is logged and counted; it never aborts the sweep. The
// returned error is only set when the due list could not be loaded.
func (e *Engine) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	now := e.now().UTC()
	report := Report{StartedAt: now}

	due, err := e.subs.FindDue(ctx, now, e.batchSize)
	if err != nil {
		return report, errors.Join(ErrSweepFailed, err)
	}
	report.Due = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, sub := range due {
		g.Go(func() error {
			o := e.runIsolated(ctx, sub.ID)
			mu.Lock()
			report.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)

	e.logger.InfoContext(ctx, "billing sweep finished",
		slog.Int("due", report.Due),
		slog.Int("charged", report.Charged),
		slog.Int("failed", report.Failed),
		slog.Int("expired", report.Expired),
		slog.Int("cancelled", report.Cancelled),
		slog.Int("skipped", report.Skipped),
		slog.Int("errored", report.Errored),
		slog.Duration("duration", report.Duration))

	if e.observer != nil {
		e.observer.ObserveSweep(report)
	}
	return report, nil
}

func (e *Engine) runIsolated(ctx context.Context, id uuid.UUID) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic while billing subscription",
				logger.SubscriptionID(id),
				slog.Any("panic", r))
			out = OutcomeErrored
		}
	}()

	out, err := e.ProcessSubscription(ctx, id)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to bill subscription",
			logger.SubscriptionID(id),
			logger.Error(err))
	}
	return out
}

// ProcessSubscription bills one subscription if it is still due. It skips
// subscriptions whose lock is held elsewhere.
func (e *Engine) ProcessSubscription(ctx context.Context, id uuid.UUID) (Outcome, error) {
	unlock, err := e.locker.TryLock(ctx, locker.SubscriptionKey(id.String()))
	if err != nil {
		if errors.Is(err, locker.ErrLocked) {
			e.logger.DebugContext(ctx, "subscription busy, skipping", logger.SubscriptionID(id))
			return OutcomeSkipped, nil
		}
		return OutcomeErrored, errors.Join(errors.New("billing: failed to acquire lock"), err)
	}
	defer e.release(ctx, id, unlock)

	// Re-read under the lock: another sweeper may have just billed it.
	sub, err := e.subs.Get(ctx, id)
	if err != nil {
		return OutcomeErrored, err
	}
	now := e.now().UTC()
	if !sub.DueAt(now) {
		return OutcomeSkipped, nil
	}

	if sub.CancelAtPeriodEnd {
		if err := e.lifecycle.PeriodEnded(&sub, now); err != nil {
			return OutcomeErrored, err
		}
		if err := e.subs.Save(ctx, &sub); err != nil {
			return OutcomeErrored, err
		}
		e.logger.InfoContext(ctx, "subscription cancelled at period end", logger.SubscriptionID(sub.ID))
		return OutcomeCancelled, nil
	}

	plan, err := e.plans.GetPlan(ctx, sub.PlanCode)
	if err != nil {
		return OutcomeErrored, err
	}

	amount := max(plan.Amount-sub.CreditBalance, 0)
	key := payment.IdempotencyKey(sub.ID, sub.BillingCycle, sub.RetryCount)
	kind := payment.KindRenewal
	if sub.RetryCount > 0 {
		kind = payment.KindRetry
	}

	attempt, err := e.settledAttempt(ctx, key)
	if err != nil {
		return OutcomeErrored, err
	}
	if attempt == nil {
		a, err := e.charger.Charge(ctx, payment.ChargeSpec{
			SubscriptionID:  sub.ID,
			Kind:            kind,
			Cycle:           sub.BillingCycle,
			Amount:          amount,
			Currency:        plan.Currency,
			PaymentMethodID: sub.PaymentMethodID,
			IdempotencyKey:  key,
			Description:     fmt.Sprintf("%s, cycle %d", plan.Name, sub.BillingCycle),
		})
		if err != nil {
			return OutcomeErrored, err
		}
		attempt = &a
	}

	outcome, err := e.applyAttempt(ctx, &sub, *attempt, plan, now)
	if err != nil {
		return OutcomeErrored, err
	}
	if err := e.subs.Save(ctx, &sub); err != nil {
		return OutcomeErrored, err
	}
	if outcome == OutcomeExpired {
		e.alertExpired(ctx, sub)
	}
	return outcome, nil
}

// settledAttempt returns a successful attempt already recorded under key,
// for instance one confirmed by a webhook before the sweep saved its result.
func (e *Engine) settledAttempt(ctx context.Context, key string) (*payment.Attempt, error) {
	a, err := e.attempts.LatestByKey(ctx, key)
	switch {
	case errors.Is(err, payment.ErrAttemptNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Join(errors.New("billing: failed to look up attempt"), err)
	case a.Succeeded():
		return &a, nil
	}
	return nil, nil
}

// applyAttempt moves sub according to a final cycle attempt.
func (e *Engine) applyAttempt(ctx context.Context, sub *subscription.Subscription, a payment.Attempt, plan catalog.Plan, now time.Time) (Outcome, error) {
	from := sub.Status

	if a.Succeeded() {
		creditUsed := min(max(plan.Amount-a.Amount, 0), sub.CreditBalance)
		if err := e.lifecycle.ChargeSucceeded(sub, plan, creditUsed, now); err != nil {
			return OutcomeErrored, err
		}
		e.logger.InfoContext(ctx, "subscription renewed",
			logger.SubscriptionID(sub.ID),
			logger.Transition(string(from), string(sub.Status)),
			slog.Int("cycle", a.Cycle),
			slog.Time("next_billing_date", sub.NextBillingDate))
		return OutcomeCharged, nil
	}

	if err := e.lifecycle.ChargeFailed(sub, now); err != nil {
		return OutcomeErrored, err
	}
	if sub.Status == subscription.StatusExpired {
		e.logger.WarnContext(ctx, "subscription expired after failed retries",
			logger.SubscriptionID(sub.ID),
			logger.Transition(string(from), string(sub.Status)),
			logger.RetryCount(sub.RetryCount))
		return OutcomeExpired, nil
	}
	e.logger.WarnContext(ctx, "subscription charge failed",
		logger.SubscriptionID(sub.ID),
		logger.Transition(string(from), string(sub.Status)),
		logger.RetryCount(sub.RetryCount),
		slog.Time("next_retry", sub.NextBillingDate))
	return OutcomeFailed, nil
}

func (e *Engine) alertExpired(ctx context.Context, sub subscription.Subscription) {
	if e.alerter == nil {
		return
	}
	err := e.alerter.Alert(ctx, notify.Alert{
		Subject: "Subscription expired",
		Body:    "All retries for the current billing cycle failed.",
		Fields: map[string]string{
			"subscription_id": sub.ID.String(),
			"customer_id":     sub.CustomerID,
			"plan_code":       sub.PlanCode,
			"cycle":           fmt.Sprint(sub.BillingCycle),
		},
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to send expiry alert", logger.SubscriptionID(sub.ID), logger.Error(err))
	}
}

func (e *Engine) release(ctx context.Context, id uuid.UUID, unlock locker.Unlock) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		e.logger.WarnContext(ctx, "failed to release subscription lock", logger.SubscriptionID(id), logger.Error(err))
	}
}
