package signature

import "errors"

var (
	ErrMissingSecret    = errors.New("signature: secret is required")
	ErrEmptyPayload     = errors.New("signature: payload is empty")
	ErrMissingHeaders   = errors.New("signature: missing signature headers")
	ErrExpired          = errors.New("signature: timestamp outside the allowed window")
	ErrMismatch         = errors.New("signature: mismatch")
	ErrInvalidTimestamp = errors.New("signature: invalid timestamp")
)
