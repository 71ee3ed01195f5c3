package webhook

import "errors"

var (
	ErrInvalidSignature     = errors.New("webhook: invalid signature")
	ErrInvalidPayload       = errors.New("webhook: invalid payload")
	ErrDuplicateEvent       = errors.New("webhook: duplicate event")
	ErrEnqueueFailed        = errors.New("webhook: failed to enqueue event")
	ErrEventNotFound        = errors.New("webhook: event not found")
	ErrNotClaimable         = errors.New("webhook: event is not claimable")
	ErrStaleEvent           = errors.New("webhook: event status changed concurrently")
	ErrInvalidStatus        = errors.New("webhook: invalid event status transition")
	ErrInvalidConfig        = errors.New("webhook: invalid configuration")
	ErrUnsupportedEventType = errors.New("webhook: unsupported event type")

	// ErrTerminal marks handler errors that retrying cannot fix.
	ErrTerminal = errors.New("webhook: terminal failure")
)

// Terminal wraps err so the processor fails the event without retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTerminal, err)
}

// IsTerminal reports whether err should not be retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTerminal) ||
		errors.Is(err, ErrUnsupportedEventType) ||
		errors.Is(err, ErrInvalidPayload)
}
