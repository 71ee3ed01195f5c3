package notify

import "errors"

var (
	ErrFailedToSendAlert = errors.New("notify: failed to send alert")
	ErrInvalidConfig     = errors.New("notify: invalid config")
	ErrInvalidAlert      = errors.New("notify: alert subject is required")
)
