package payment

import "errors"

var (
	ErrAttemptNotFound     = errors.New("payment: billing attempt not found")
	ErrAttemptFinalized    = errors.New("payment: billing attempt already finalized")
	ErrDuplicateAttemptKey = errors.New("payment: pending attempt with this idempotency key already exists")
	ErrInvalidCharge       = errors.New("payment: invalid charge request")

	// ErrGatewayUnavailable marks transient adapter failures: timeouts, network errors, processor 5xx.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	// ErrGatewayRejected marks requests the processor refused outright (bad request, auth).
	ErrGatewayRejected = errors.New("payment: gateway rejected request")
)
