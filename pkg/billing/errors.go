package billing

import "errors"

var (
	ErrSweepFailed        = errors.New("billing: failed to load due subscriptions")
	ErrUnknownAttempt     = errors.New("billing: no attempt recorded for idempotency key")
	ErrInvalidOutcome     = errors.New("billing: reconciled outcome must be final")
	ErrSubscriptionLocked = errors.New("billing: subscription is locked by another operation")
)
