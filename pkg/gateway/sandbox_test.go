package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/gateway"
	"github.com/dmitrymomot/billing/pkg/payment"
)

func TestSandbox_Charge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		amount     int64
		pm         string
		wantOK     bool
		wantReason string
	}{
		{"approved", 2999, "pm_1", true, ""},
		{"declined by amount", 1002, "pm_1", false, gateway.DeclineReasonSandbox},
		{"no payment method", 2999, "", false, "missing_payment_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sb := gateway.NewSandbox()
			key := "sub_x_cycle_1_try_0_" + tt.name
			res, err := sb.Charge(context.Background(), payment.ChargeRequest{
				PaymentMethodID: tt.pm, Amount: tt.amount, Currency: "USD", IdempotencyKey: key,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, tt.wantReason, res.DeclineReason)
			if tt.wantOK {
				assert.Equal(t, gateway.SandboxTransactionID(key), res.TransactionID)
			}
		})
	}
}

func TestSandbox_ReplaysVerdictForKey(t *testing.T) {
	t.Parallel()

	sb := gateway.NewSandbox()
	req := payment.ChargeRequest{PaymentMethodID: "pm_1", Amount: 500, Currency: "USD", IdempotencyKey: "k1"}
	first, err := sb.Charge(context.Background(), req)
	require.NoError(t, err)

	req.Amount = 502
	second, err := sb.Charge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSandbox_WorksWithCharger(t *testing.T) {
	t.Parallel()

	store := payment.NewMemoryStore()
	ch := payment.NewCharger(gateway.NewSandbox(), store)

	a, err := ch.Charge(context.Background(), payment.ChargeSpec{
		SubscriptionID:  uuid.New(),
		Kind:            payment.KindRenewal,
		Cycle:           2,
		Amount:          1002,
		Currency:        "USD",
		PaymentMethodID: "pm_1",
		IdempotencyKey:  "sub_1_cycle_2_try_0",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDeclined, a.Outcome)
	assert.Equal(t, gateway.DeclineReasonSandbox, a.DeclineReason)
}

func TestCircuitBreaker_Recovers(t *testing.T) {
	t.Parallel()

	cb := gateway.NewCircuitBreaker(2, 1, 20*time.Millisecond)
	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, gateway.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, gateway.CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	assert.Equal(t, "closed", cb.State().String())
}
