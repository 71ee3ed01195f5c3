package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/money"
)

func TestScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want int32
	}{
		{"USD", 2},
		{"eur", 2},
		{"JPY", 0},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()

			got, err := money.Scale(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := money.Scale("NOPE")
	assert.ErrorIs(t, err, money.ErrUnknownCurrency)
}

func TestNormalizeCurrency(t *testing.T) {
	t.Parallel()

	code, err := money.NormalizeCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	_, err = money.NormalizeCurrency("")
	assert.ErrorIs(t, err, money.ErrUnknownCurrency)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "29.99", money.Format(2999, "USD"))
	assert.Equal(t, "-15.00", money.Format(-1500, "USD"))
	assert.Equal(t, "500", money.Format(500, "JPY"))
}

func TestRoundHalfUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(3), money.RoundHalfUp(decimal.RequireFromString("2.5")))
	assert.Equal(t, int64(2), money.RoundHalfUp(decimal.RequireFromString("2.4999")))
	assert.Equal(t, int64(2500), money.RoundHalfUp(decimal.RequireFromString("2500")))
}

func TestToDecimal(t *testing.T) {
	t.Parallel()

	d, err := money.ToDecimal(2999, "USD")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("29.99")))
}
