package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

func TestReconcileCharge_WebhookSuccessAfterSweepError(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	due := sub.NextBillingDate
	key := payment.IdempotencyKey(sub.ID, 2, 0)

	e.mode.Store(int32(fail))
	e.clock.Set(due)
	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, subscription.StatusPastDue, e.get(t, sub).Status)

	update := billing.ChargeUpdate{IdempotencyKey: key, Outcome: payment.OutcomeSuccess, TransactionID: "txn_late"}
	e.clock.Set(due.Add(time.Hour))
	require.NoError(t, eng.ReconcileCharge(context.Background(), update))

	got := e.get(t, sub)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, 3, got.BillingCycle)
	assert.Equal(t, due.AddDate(0, 1, 0), got.NextBillingDate)

	attempts := e.attemptsFor(t, sub)
	require.Len(t, attempts, 3)
	assert.Equal(t, payment.KindCorrection, attempts[2].Kind)
	assert.Equal(t, "txn_late", attempts[2].TransactionID)

	// redelivery changes nothing
	require.NoError(t, eng.ReconcileCharge(context.Background(), update))
	assert.Equal(t, got, e.get(t, sub))
	assert.Len(t, e.attemptsFor(t, sub), 3)
}

func TestReconcileCharge_FinalizesPendingAttempt(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	due := sub.NextBillingDate
	key := payment.IdempotencyKey(sub.ID, 2, 0)

	// a sweeper crashed after recording the attempt but before finalizing it
	require.NoError(t, e.attempts.CreateAttempt(context.Background(), payment.Attempt{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Kind:           payment.KindRenewal,
		Cycle:          2,
		Amount:         5000,
		Currency:       "USD",
		IdempotencyKey: key,
		Outcome:        payment.OutcomePending,
		AttemptedAt:    due,
	}))

	e.clock.Set(due.Add(time.Minute))
	require.NoError(t, eng.ReconcileCharge(context.Background(), billing.ChargeUpdate{
		IdempotencyKey: key,
		Outcome:        payment.OutcomeSuccess,
		TransactionID:  "txn_1",
	}))

	got := e.get(t, sub)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, 3, got.BillingCycle)

	attempts := e.attemptsFor(t, sub)
	require.Len(t, attempts, 2)
	assert.Equal(t, payment.OutcomeSuccess, attempts[1].Outcome)

	// the next sweep finds nothing to do
	report, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestReconcileCharge_FailureIsCountedOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	key := payment.IdempotencyKey(sub.ID, 2, 0)

	e.mode.Store(int32(decline))
	e.clock.Set(sub.NextBillingDate)
	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	before := e.get(t, sub)
	require.Equal(t, 1, before.RetryCount)

	require.NoError(t, eng.ReconcileCharge(context.Background(), billing.ChargeUpdate{
		IdempotencyKey: key,
		Outcome:        payment.OutcomeDeclined,
		Reason:         "insufficient_funds",
	}))
	assert.Equal(t, before, e.get(t, sub))
	assert.Len(t, e.attemptsFor(t, sub), 2)
}

func TestReconcileCharge_SettledCycleLeavesSubscriptionAlone(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	sub := e.create(t, "basic", false)
	before := e.get(t, sub)

	require.NoError(t, eng.ReconcileCharge(context.Background(), billing.ChargeUpdate{
		IdempotencyKey: payment.IdempotencyKey(sub.ID, 1, 0),
		Outcome:        payment.OutcomeSuccess,
		TransactionID:  "txn_initial",
	}))
	assert.Equal(t, before, e.get(t, sub))
}

func TestReconcileCharge_Rejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 0)
	eng := e.engine()

	tests := []struct {
		name   string
		update billing.ChargeUpdate
		err    error
	}{
		{"unknown key", billing.ChargeUpdate{IdempotencyKey: "sub_x_cycle_1_try_0", Outcome: payment.OutcomeSuccess}, billing.ErrUnknownAttempt},
		{"empty key", billing.ChargeUpdate{Outcome: payment.OutcomeSuccess}, billing.ErrUnknownAttempt},
		{"pending outcome", billing.ChargeUpdate{IdempotencyKey: "k", Outcome: payment.OutcomePending}, billing.ErrInvalidOutcome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, eng.ReconcileCharge(context.Background(), tt.update), tt.err)
		})
	}
}
