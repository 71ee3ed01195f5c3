package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/billing/pkg/signature"
)

// Verifier authenticates a raw notification body. Any error means the body
// must be rejected.
type Verifier interface {
	Verify(ctx context.Context, header http.Header, payload []byte) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, header http.Header, payload []byte) error

func (f VerifierFunc) Verify(ctx context.Context, header http.Header, payload []byte) error {
	return f(ctx, header, payload)
}

// HMACVerifier checks X-Webhook-Signature and X-Webhook-Timestamp.
type HMACVerifier struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

func NewHMACVerifier(secret string, maxAge time.Duration) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: WEBHOOK_SECRET is required", ErrInvalidConfig)
	}
	return &HMACVerifier{secret: secret, maxAge: maxAge, now: time.Now}, nil
}

// WithNow sets the verifier clock.
func (v *HMACVerifier) WithNow(now func() time.Time) *HMACVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

func (v *HMACVerifier) Verify(_ context.Context, header http.Header, payload []byte) error {
	h, err := signature.FromHeader(header)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	if err := signature.VerifyAt(v.secret, payload, h, v.maxAge, v.now()); err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	return nil
}

// PaddleVerifier checks the Paddle-Signature header with the Paddle SDK.
type PaddleVerifier struct {
	v *paddle.WebhookVerifier
}

func NewPaddleVerifier(secret string) (*PaddleVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: WEBHOOK_SECRET is required", ErrInvalidConfig)
	}
	return &PaddleVerifier{v: paddle.NewWebhookVerifier(secret)}, nil
}

func (p *PaddleVerifier) Verify(ctx context.Context, header http.Header, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	req.Header = header.Clone()

	ok, err := p.v.Verify(req)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// NewVerifier builds the verifier selected by cfg.Verifier.
func NewVerifier(cfg Config) (Verifier, error) {
	switch cfg.Verifier {
	case "", VerifierHMAC:
		v, err := NewHMACVerifier(cfg.Secret, cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		return v, nil
	case VerifierPaddle:
		v, err := NewPaddleVerifier(cfg.Secret)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unknown verifier %q", ErrInvalidConfig, cfg.Verifier)
	}
}
