package gateway

import "errors"

var (
	ErrInvalidConfig   = errors.New("gateway: invalid configuration")
	ErrInvalidRequest  = errors.New("gateway: invalid charge request")
	ErrCircuitOpen     = errors.New("gateway: circuit breaker is open")
	ErrUnavailable     = errors.New("gateway: processor unavailable")
	ErrInvalidResponse = errors.New("gateway: invalid processor response")
)
