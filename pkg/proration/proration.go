// Package proration computes mid-cycle plan change adjustments.
//
// Calculate is a pure function: identical inputs always yield an identical
// Result, so it can be re-run safely when a plan change is retried.
package proration

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/money"
)

var (
	ErrInvalidProrationWindow = errors.New("proration: change instant is outside the billing period")
	ErrCurrencyMismatch       = errors.New("proration: plans are priced in different currencies")
)

// Period is a half-open billing period [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Result holds the adjustment for a plan change. All amounts are minor units.
type Result struct {
	CreditAmount      int64           `json:"credit_amount"`
	ChargeAmount      int64           `json:"charge_amount"`
	NetAmount         int64           `json:"net_amount"`
	Currency          string          `json:"currency"`
	EffectiveDate     time.Time       `json:"effective_date"`
	RemainingFraction decimal.Decimal `json:"remaining_fraction"`
}

// IsCharge reports whether the change needs an immediate payment.
func (r Result) IsCharge() bool { return r.NetAmount > 0 }

// IsCredit reports whether the customer is owed the difference.
func (r Result) IsCredit() bool { return r.NetAmount < 0 }

// Calculate returns the credit for the unused part of oldPlan and the charge
// for newPlan over the same remaining time. Credit and charge are each rounded
// half-up to minor units and NetAmount is their exact difference.
func Calculate(oldPlan, newPlan catalog.Plan, period Period, at time.Time) (Result, error) {
	if oldPlan.Currency != newPlan.Currency {
		return Result{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, oldPlan.Currency, newPlan.Currency)
	}
	if period.End.Before(period.Start) || at.Before(period.Start) || at.After(period.End) {
		return Result{}, ErrInvalidProrationWindow
	}

	res := Result{
		Currency:          newPlan.Currency,
		EffectiveDate:     at,
		RemainingFraction: decimal.Zero,
	}

	total := period.End.Sub(period.Start)
	if total == 0 {
		return res, nil
	}

	fraction := RemainingFraction(period, at)
	res.RemainingFraction = fraction
	res.CreditAmount = money.RoundHalfUp(decimal.NewFromInt(oldPlan.Amount).Mul(fraction))
	res.ChargeAmount = money.RoundHalfUp(decimal.NewFromInt(newPlan.Amount).Mul(fraction))
	res.NetAmount = res.ChargeAmount - res.CreditAmount

	return res, nil
}

// RemainingFraction is (end - at) / (end - start) clamped to [0, 1].
// A zero-length period has nothing remaining.
func RemainingFraction(period Period, at time.Time) decimal.Decimal {
	total := period.End.Sub(period.Start)
	if total <= 0 {
		return decimal.Zero
	}
	remaining := period.End.Sub(at)

	f := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
	switch {
	case f.IsNegative():
		return decimal.Zero
	case f.GreaterThan(decimal.NewFromInt(1)):
		return decimal.NewFromInt(1)
	}
	return f
}
