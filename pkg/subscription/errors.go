package subscription

import "errors"

var (
	ErrSubscriptionNotFound   = errors.New("subscription: not found")
	ErrInvalidRequest         = errors.New("subscription: invalid request")
	ErrInvalidStateTransition = errors.New("subscription: invalid state transition")
	ErrPlanInactive           = errors.New("subscription: plan is not available for new subscriptions")
	ErrSamePlan               = errors.New("subscription: already on the requested plan")
	ErrConcurrentUpdate       = errors.New("subscription: modified concurrently")
	ErrSubscriptionLocked     = errors.New("subscription: another operation is in progress")
	ErrDuplicateSubscription  = errors.New("subscription: id already exists")
	ErrIdempotencyConflict    = errors.New("subscription: idempotency key reused with a different request")

	// ErrNotStored means the first period was paid but the subscription could
	// not be saved. Retrying with the same idempotency key completes it
	// without charging again.
	ErrNotStored = errors.New("subscription: paid but not stored")

	// ErrPaymentDeclined means the processor refused the charge.
	ErrPaymentDeclined = errors.New("subscription: payment declined")
	// ErrPaymentFailed means the charge could not be completed (gateway error or timeout).
	ErrPaymentFailed = errors.New("subscription: payment failed")
)
