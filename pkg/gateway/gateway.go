// Package gateway provides payment.Gateway implementations: an HTTP client
// for the processor API and an in-process sandbox for local runs.
package gateway

import (
	"fmt"

	"github.com/dmitrymomot/billing/pkg/payment"
)

// New builds the gateway selected by cfg.Driver.
func New(cfg Config, opts ...ClientOption) (payment.Gateway, error) {
	switch cfg.Driver {
	case "", DriverSandbox:
		return NewSandbox(), nil
	case DriverHTTP:
		c, err := NewClient(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
