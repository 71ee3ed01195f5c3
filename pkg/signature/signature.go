package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// clockSkew is how far in the future a timestamp may be before it is rejected.
const clockSkew = time.Minute

// Headers carries a signature and the values it is bound to.
type Headers struct {
	Signature string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s Headers) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	if s.ID != "" {
		h.Set(HeaderID, s.ID)
	}
}

// Sign signs payload with the current time and a fresh message id.
func Sign(secret string, payload []byte) (Headers, error) {
	return SignAt(secret, payload, time.Now())
}

// SignAt signs payload as if it were sent at t.
func SignAt(secret string, payload []byte, t time.Time) (Headers, error) {
	if secret == "" {
		return Headers{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Headers{}, ErrEmptyPayload
	}

	ts := t.Unix()
	return Headers{
		Signature: compute(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.NewString(),
	}, nil
}

// Verify checks that h was produced by signing payload with secret. A
// positive maxAge also rejects timestamps older than maxAge or more than a
// minute in the future.
func Verify(secret string, payload []byte, h Headers, maxAge time.Duration) error {
	return VerifyAt(secret, payload, h, maxAge, time.Now())
}

// VerifyAt is Verify with an explicit current time.
func VerifyAt(secret string, payload []byte, h Headers, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if h.Signature == "" || h.Timestamp == 0 {
		return ErrMissingHeaders
	}

	if maxAge > 0 {
		age := now.Sub(time.Unix(h.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signed %v ago", ErrExpired, age.Truncate(time.Second))
		}
		if age < -clockSkew {
			return fmt.Errorf("%w: timestamp is in the future", ErrExpired)
		}
	}

	expected := compute(secret, h.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(h.Signature)) {
		return ErrMismatch
	}
	return nil
}

// FromHeader reads signature headers from an HTTP request or response.
func FromHeader(h http.Header) (Headers, error) {
	sig := Headers{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}
	raw := h.Get(HeaderTimestamp)
	if sig.Signature == "" || raw == "" {
		return Headers{}, ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Headers{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	sig.Timestamp = ts
	return sig, nil
}

func compute(secret string, ts int64, payload []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(m, "%d.", ts)
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}
