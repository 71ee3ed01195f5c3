// Package money handles minor-unit amounts and ISO 4217 currency precision.
//
// Amounts are carried as int64 minor units everywhere in the billing core.
// Decimal arithmetic is only used for intermediate results (fractions of a
// period) and is rounded back to minor units before it leaves a calculation.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ErrUnknownCurrency is returned for codes that are not valid ISO 4217 currencies.
var ErrUnknownCurrency = errors.New("money: unknown currency")

// NormalizeCurrency validates code and returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", errors.Join(ErrUnknownCurrency, err)
	}
	return unit.String(), nil
}

// Scale returns the number of minor-unit digits for the currency (2 for USD, 0 for JPY).
func Scale(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 0, errors.Join(ErrUnknownCurrency, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// ToDecimal converts minor units to a major-unit decimal, e.g. 2999 USD -> 29.99.
func ToDecimal(amount int64, code string) (decimal.Decimal, error) {
	scale, err := Scale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(amount, -scale), nil
}

// Format renders minor units as a fixed-point string in major units.
// Unknown currencies fall back to two decimal places.
func Format(amount int64, code string) string {
	scale, err := Scale(code)
	if err != nil {
		scale = 2
	}
	return decimal.New(amount, -scale).StringFixed(scale)
}

// RoundHalfUp rounds a minor-unit decimal to a whole number of minor units.
// Halves round away from zero, which is half-up for non-negative values.
func RoundHalfUp(minor decimal.Decimal) int64 {
	return minor.Round(0).IntPart()
}
