package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/billing/pkg/money"
)

// Spec describes a plan to create.
type Spec struct {
	Code          string       `json:"code" yaml:"code"`
	Name          string       `json:"name" yaml:"name"`
	Amount        int64        `json:"amount" yaml:"amount"`
	Currency      string       `json:"currency" yaml:"currency"`
	IntervalUnit  IntervalUnit `json:"interval_unit" yaml:"interval_unit"`
	IntervalCount int          `json:"interval_count" yaml:"interval_count"`
	TrialDays     int          `json:"trial_days" yaml:"trial_days"`
	Inactive      bool         `json:"inactive,omitempty" yaml:"inactive"`
}

// Validate checks the definition and normalizes the currency code in place.
func (s *Spec) Validate() error {
	var errs []error

	s.Code = strings.TrimSpace(s.Code)
	s.Name = strings.TrimSpace(s.Name)

	if s.Code == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Amount <= 0 {
		errs = append(errs, fmt.Errorf("amount must be greater than zero, got %d", s.Amount))
	}
	if s.IntervalUnit == "" {
		s.IntervalUnit = IntervalMonth
	}
	if !s.IntervalUnit.Valid() {
		errs = append(errs, fmt.Errorf("unknown interval unit %q", s.IntervalUnit))
	}
	if s.IntervalCount < 1 {
		errs = append(errs, fmt.Errorf("interval count must be at least 1, got %d", s.IntervalCount))
	}
	if s.TrialDays < 0 {
		errs = append(errs, fmt.Errorf("trial days must not be negative, got %d", s.TrialDays))
	}
	code, err := money.NormalizeCurrency(s.Currency)
	if err != nil {
		errs = append(errs, fmt.Errorf("currency %q: %w", s.Currency, err))
	} else {
		s.Currency = code
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPlan}, errs...)...)
	}
	return nil
}
