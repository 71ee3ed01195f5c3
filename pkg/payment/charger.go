package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// ChargeSpec describes a charge to record and send.
type ChargeSpec struct {
	SubscriptionID  uuid.UUID
	Kind            Kind
	Cycle           int
	Amount          int64
	Currency        string
	PaymentMethodID string
	IdempotencyKey  string
	Description     string
}

func (s ChargeSpec) validate() error {
	switch {
	case s.SubscriptionID == uuid.Nil:
		return fmt.Errorf("%w: subscription id is required", ErrInvalidCharge)
	case s.IdempotencyKey == "":
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidCharge)
	case s.Amount < 0:
		return fmt.Errorf("%w: negative amount %d", ErrInvalidCharge, s.Amount)
	case s.Currency == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidCharge)
	}
	return nil
}

// Observer receives every finalized attempt. Used for metrics.
type Observer interface {
	ObserveAttempt(a Attempt, took time.Duration)
}

// Charger records billing attempts around gateway calls.
type Charger struct {
	gateway  Gateway
	store    AttemptStore
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

type ChargerOption func(*Charger)

// WithTimeout bounds each gateway call. Defaults to 30s.
func WithTimeout(d time.Duration) ChargerOption {
	return func(c *Charger) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) ChargerOption {
	return func(c *Charger) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) ChargerOption {
	return func(c *Charger) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) ChargerOption {
	return func(c *Charger) { c.observer = o }
}

func NewCharger(gateway Gateway, store AttemptStore, opts ...ChargerOption) *Charger {
	if gateway == nil {
		panic("payment: gateway is required")
	}
	if store == nil {
		panic("payment: attempt store is required")
	}
	c := &Charger{
		gateway: gateway,
		store:   store,
		timeout: 30 * time.Second,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempts exposes the underlying store for read access.
func (c *Charger) Attempts() AttemptStore { return c.store }

// Charge writes a pending attempt, calls the gateway under a bounded timeout
// and finalizes the attempt with the outcome. Gateway failures and declines
// are reported through Attempt.Outcome; the returned error is only set when
// the attempt could not be recorded.
//
// If a pending attempt with the same idempotency key already exists (a
// previous run crashed mid-call) it is resumed instead of duplicated. The
// gateway deduplicates on the key, so the customer is charged at most once.
// A settled (paid or declined) attempt under the key is returned as is,
// without a gateway call. Errored attempts are retried under the same key.
func (c *Charger) Charge(ctx context.Context, spec ChargeSpec) (Attempt, error) {
	if err := spec.validate(); err != nil {
		return Attempt{}, err
	}

	prev, err := c.store.LatestByKey(ctx, spec.IdempotencyKey)
	switch {
	case err == nil && prev.Settled():
		c.logger.InfoContext(ctx, "replaying settled billing attempt",
			logger.AttemptID(prev.ID),
			logger.IdempotencyKey(prev.IdempotencyKey),
			slog.String("outcome", string(prev.Outcome)))
		return prev, nil
	case err != nil && !errors.Is(err, ErrAttemptNotFound):
		return Attempt{}, errors.Join(errors.New("payment: failed to look up attempt"), err)
	}

	attempt := Attempt{
		ID:             uuid.New(),
		SubscriptionID: spec.SubscriptionID,
		Kind:           spec.Kind,
		Cycle:          spec.Cycle,
		Amount:         spec.Amount,
		Currency:       spec.Currency,
		IdempotencyKey: spec.IdempotencyKey,
		Outcome:        OutcomePending,
		AttemptedAt:    c.now().UTC(),
	}

	if err := c.store.CreateAttempt(ctx, attempt); err != nil {
		if !errors.Is(err, ErrDuplicateAttemptKey) {
			return Attempt{}, errors.Join(errors.New("payment: failed to record attempt"), err)
		}
		existing, lerr := c.store.LatestByKey(ctx, spec.IdempotencyKey)
		if lerr != nil {
			return Attempt{}, errors.Join(errors.New("payment: failed to load pending attempt"), lerr)
		}
		c.logger.WarnContext(ctx, "resuming pending billing attempt",
			logger.AttemptID(existing.ID),
			logger.IdempotencyKey(existing.IdempotencyKey))
		attempt = existing
	}

	start := time.Now()
	res := c.call(ctx, spec)

	// Record even if the caller gave up; an attempt must not stay pending.
	final, err := c.store.FinalizeAttempt(context.WithoutCancel(ctx), attempt.ID, res)
	if err != nil {
		return attempt, errors.Join(errors.New("payment: failed to finalize attempt"), err)
	}

	if c.observer != nil {
		c.observer.ObserveAttempt(final, time.Since(start))
	}

	log := c.logger.With(
		logger.SubscriptionID(final.SubscriptionID),
		logger.AttemptID(final.ID),
		logger.IdempotencyKey(final.IdempotencyKey),
		slog.String("kind", string(final.Kind)),
		slog.Int64("amount", final.Amount),
		slog.String("outcome", string(final.Outcome)),
	)
	switch final.Outcome {
	case OutcomeSuccess:
		log.InfoContext(ctx, "charge succeeded", slog.String("transaction_id", final.TransactionID))
	case OutcomeDeclined:
		log.WarnContext(ctx, "charge declined", slog.String("decline_reason", final.DeclineReason))
	default:
		log.ErrorContext(ctx, "charge failed", slog.String("error", final.Error))
	}

	return final, nil
}

func (c *Charger) call(ctx context.Context, spec ChargeSpec) Result {
	if spec.Amount == 0 {
		return Result{Outcome: OutcomeSuccess, CompletedAt: c.now().UTC()}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.gateway.Charge(callCtx, ChargeRequest{
		PaymentMethodID: spec.PaymentMethodID,
		Amount:          spec.Amount,
		Currency:        spec.Currency,
		IdempotencyKey:  spec.IdempotencyKey,
		Description:     spec.Description,
		Metadata: map[string]string{
			"subscription_id": spec.SubscriptionID.String(),
			"kind":            string(spec.Kind),
		},
	})
	completed := c.now().UTC()

	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return Result{Outcome: OutcomeError, Error: "gateway timeout: " + err.Error(), CompletedAt: completed}
	case err != nil:
		return Result{Outcome: OutcomeError, Error: err.Error(), CompletedAt: completed}
	case !out.Success:
		return Result{Outcome: OutcomeDeclined, TransactionID: out.TransactionID, DeclineReason: out.DeclineReason, CompletedAt: completed}
	default:
		return Result{Outcome: OutcomeSuccess, TransactionID: out.TransactionID, CompletedAt: completed}
	}
}
