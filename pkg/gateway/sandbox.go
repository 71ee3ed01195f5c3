package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dmitrymomot/billing/pkg/payment"
)

// DeclineReasonSandbox is returned for sandbox charges the sandbox refuses.
const DeclineReasonSandbox = "card_declined"

// Sandbox is an in-process processor for local runs. It approves every
// charge with a transaction id derived from the idempotency key, except
// amounts whose last two digits are 02, which it declines. Replaying a key
// returns the first verdict.
type Sandbox struct {
	mu   sync.Mutex
	seen map[string]payment.ChargeResult
}

func NewSandbox() *Sandbox {
	return &Sandbox{seen: make(map[string]payment.ChargeResult)}
}

// Charge implements payment.Gateway.
func (s *Sandbox) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return payment.ChargeResult{}, err
	}
	if req.IdempotencyKey == "" || req.Amount <= 0 {
		return payment.ChargeResult{}, fmt.Errorf("%w: key and positive amount are required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.seen[req.IdempotencyKey]; ok {
		return res, nil
	}

	var res payment.ChargeResult
	switch {
	case req.PaymentMethodID == "":
		res.DeclineReason = "missing_payment_method"
	case req.Amount%100 == 2:
		res.DeclineReason = DeclineReasonSandbox
	default:
		res.Success = true
		res.TransactionID = SandboxTransactionID(req.IdempotencyKey)
	}
	s.seen[req.IdempotencyKey] = res
	return res, nil
}

// SandboxTransactionID is the transaction id the sandbox assigns to key.
func SandboxTransactionID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "txn_sbx_" + hex.EncodeToString(sum[:8])
}
