package proration_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/proration"
)

var (
	periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	period30    = proration.Period{Start: periodStart, End: periodStart.AddDate(0, 0, 30)}
)

func plan(code string, amount int64) catalog.Plan {
	return catalog.Plan{
		Code:          code,
		Amount:        amount,
		Currency:      "USD",
		IntervalUnit:  catalog.IntervalMonth,
		IntervalCount: 1,
	}
}

func TestCalculate_UpgradeMidCycle(t *testing.T) {
	t.Parallel()

	at := periodStart.AddDate(0, 0, 15)
	res, err := proration.Calculate(plan("basic", 5000), plan("pro", 8000), period30, at)
	require.NoError(t, err)

	assert.True(t, res.RemainingFraction.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(2500), res.CreditAmount)
	assert.Equal(t, int64(4000), res.ChargeAmount)
	assert.Equal(t, int64(1500), res.NetAmount)
	assert.True(t, res.IsCharge())
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, at, res.EffectiveDate)
}

func TestCalculate_Downgrade(t *testing.T) {
	t.Parallel()

	at := periodStart.AddDate(0, 0, 10)
	res, err := proration.Calculate(plan("pro", 8000), plan("basic", 5000), period30, at)
	require.NoError(t, err)

	// 20/30 remaining: credit 5333.33 -> 5333, charge 3333.33 -> 3333
	assert.Equal(t, int64(5333), res.CreditAmount)
	assert.Equal(t, int64(3333), res.ChargeAmount)
	assert.Equal(t, int64(-2000), res.NetAmount)
	assert.True(t, res.IsCredit())
}

func TestCalculate_RoundsHalfUp(t *testing.T) {
	t.Parallel()

	// 1/2 of 2999 = 1499.5 -> 1500, 1/2 of 999 = 499.5 -> 500
	at := periodStart.AddDate(0, 0, 15)
	res, err := proration.Calculate(plan("small", 999), plan("premium", 2999), period30, at)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.CreditAmount)
	assert.Equal(t, int64(1500), res.ChargeAmount)
	assert.Equal(t, int64(1000), res.NetAmount)
}

func TestCalculate_Deterministic(t *testing.T) {
	t.Parallel()

	oldPlan, newPlan := plan("a", 1234), plan("b", 98765)
	for offset := time.Duration(0); offset <= 30*24*time.Hour; offset += 7*time.Hour + 13*time.Minute {
		at := periodStart.Add(offset)
		first, err := proration.Calculate(oldPlan, newPlan, period30, at)
		require.NoError(t, err)
		second, err := proration.Calculate(oldPlan, newPlan, period30, at)
		require.NoError(t, err)

		assert.Equal(t, first.NetAmount, second.NetAmount)
		assert.Equal(t, first.ChargeAmount-first.CreditAmount, first.NetAmount)
		assert.True(t, first.RemainingFraction.GreaterThanOrEqual(decimal.Zero))
		assert.True(t, first.RemainingFraction.LessThanOrEqual(decimal.NewFromInt(1)))
	}
}

func TestCalculate_Boundaries(t *testing.T) {
	t.Parallel()

	oldPlan, newPlan := plan("basic", 5000), plan("pro", 8000)

	t.Run("at period start charges the full difference", func(t *testing.T) {
		t.Parallel()

		res, err := proration.Calculate(oldPlan, newPlan, period30, period30.Start)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), res.NetAmount)
	})

	t.Run("at period end nothing remains", func(t *testing.T) {
		t.Parallel()

		res, err := proration.Calculate(oldPlan, newPlan, period30, period30.End)
		require.NoError(t, err)
		assert.Zero(t, res.NetAmount)
		assert.Zero(t, res.CreditAmount)
	})

	t.Run("zero length period", func(t *testing.T) {
		t.Parallel()

		p := proration.Period{Start: periodStart, End: periodStart}
		res, err := proration.Calculate(oldPlan, newPlan, p, periodStart)
		require.NoError(t, err)
		assert.Zero(t, res.NetAmount)
	})

	t.Run("before period start", func(t *testing.T) {
		t.Parallel()

		_, err := proration.Calculate(oldPlan, newPlan, period30, periodStart.Add(-time.Second))
		assert.ErrorIs(t, err, proration.ErrInvalidProrationWindow)
	})

	t.Run("after period end", func(t *testing.T) {
		t.Parallel()

		_, err := proration.Calculate(oldPlan, newPlan, period30, period30.End.Add(time.Second))
		assert.ErrorIs(t, err, proration.ErrInvalidProrationWindow)
	})

	t.Run("inverted period", func(t *testing.T) {
		t.Parallel()

		p := proration.Period{Start: period30.End, End: period30.Start}
		_, err := proration.Calculate(oldPlan, newPlan, p, periodStart)
		assert.ErrorIs(t, err, proration.ErrInvalidProrationWindow)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		t.Parallel()

		eur := plan("eur", 8000)
		eur.Currency = "EUR"
		_, err := proration.Calculate(oldPlan, eur, period30, periodStart)
		assert.ErrorIs(t, err, proration.ErrCurrencyMismatch)
	})
}

func TestRemainingFraction_Clamped(t *testing.T) {
	t.Parallel()

	assert.True(t, proration.RemainingFraction(period30, period30.End.Add(time.Hour)).IsZero())
	assert.True(t, proration.RemainingFraction(period30, periodStart.Add(-time.Hour)).Equal(decimal.NewFromInt(1)))
}
