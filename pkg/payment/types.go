package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gateway is the payment method vault adapter: it charges a stored payment
// method. Implementations must honour IdempotencyKey so that retried calls
// with the same key never charge twice.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req ChargeRequest) (ChargeResult, error)

func (f GatewayFunc) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return f(ctx, req)
}

type ChargeRequest struct {
	PaymentMethodID string            `json:"payment_method_id"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	IdempotencyKey  string            `json:"-"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ChargeResult is the processor's verdict. A decline is a successful call with Success=false.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

// Outcome of a billing attempt.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeSuccess  Outcome = "success"
	OutcomeDeclined Outcome = "declined"
	OutcomeError    Outcome = "error"
)

// Final reports whether the outcome is terminal.
func (o Outcome) Final() bool {
	return o == OutcomeSuccess || o == OutcomeDeclined || o == OutcomeError
}

// Kind says why an attempt was made.
type Kind string

const (
	KindInitial    Kind = "initial"
	KindRenewal    Kind = "renewal"
	KindRetry      Kind = "retry"
	KindProration  Kind = "proration"
	KindCorrection Kind = "correction"
)

// Attempt is one billing attempt. Rows are written once as pending and
// finalized once; retries are new rows.
type Attempt struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Kind           Kind       `json:"kind"`
	Cycle          int        `json:"cycle"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	IdempotencyKey string     `json:"idempotency_key"`
	Outcome        Outcome    `json:"outcome"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	DeclineReason  string     `json:"decline_reason,omitempty"`
	Error          string     `json:"error,omitempty"`
	AttemptedAt    time.Time  `json:"attempted_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Succeeded is shorthand for Outcome == OutcomeSuccess.
func (a Attempt) Succeeded() bool { return a.Outcome == OutcomeSuccess }

// Settled reports whether the processor gave a definitive answer.
func (a Attempt) Settled() bool {
	return a.Outcome == OutcomeSuccess || a.Outcome == OutcomeDeclined
}

// IsCycleCharge reports whether the attempt pays for a billing cycle, that
// is its key was derived by IdempotencyKey. Corrections keep the key of the
// attempt they correct.
func (a Attempt) IsCycleCharge() bool {
	return strings.HasPrefix(a.IdempotencyKey, fmt.Sprintf("sub_%s_cycle_%d_try_", a.SubscriptionID, a.Cycle))
}

// Result holds the terminal fields written when an attempt is finalized.
type Result struct {
	Outcome       Outcome
	TransactionID string
	DeclineReason string
	Error         string
	CompletedAt   time.Time
}

// IdempotencyKey derives the key for a cycle charge. try is the number of
// failed attempts already made in that cycle, so a crashed attempt is
// re-sent with the same key while a scheduled retry gets a fresh one.
func IdempotencyKey(subscriptionID uuid.UUID, cycle, try int) string {
	return fmt.Sprintf("sub_%s_cycle_%d_try_%d", subscriptionID, cycle, try)
}

// ProrationKey derives the key for the n-th plan change of a subscription.
func ProrationKey(subscriptionID uuid.UUID, change int) string {
	return fmt.Sprintf("sub_%s_change_%d", subscriptionID, change)
}
