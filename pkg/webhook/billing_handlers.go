package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

// Event types handled by RegisterBillingHandlers.
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentMethodUpdated  = "payment_method.updated"
)

// ChargeReconciler applies asynchronous charge verdicts.
type ChargeReconciler interface {
	ReconcileCharge(ctx context.Context, u billing.ChargeUpdate) error
}

// SubscriptionManager is the part of the subscription service webhooks use.
type SubscriptionManager interface {
	Get(ctx context.Context, id uuid.UUID) (subscription.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID, atPeriodEnd bool) (subscription.Subscription, error)
	UpdatePaymentMethod(ctx context.Context, id uuid.UUID, paymentMethodID string) (subscription.Subscription, error)
}

type paymentData struct {
	IdempotencyKey string `json:"idempotency_key"`
	TransactionID  string `json:"transaction_id"`
	DeclineReason  string `json:"decline_reason"`
	Error          string `json:"error"`
}

type cancellationData struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	AtPeriodEnd    bool      `json:"at_period_end"`
}

type paymentMethodData struct {
	SubscriptionID  uuid.UUID `json:"subscription_id"`
	PaymentMethodID string    `json:"payment_method_id"`
}

// RegisterBillingHandlers wires the processor notifications the billing
// engine understands into d.
func RegisterBillingHandlers(d *Dispatcher, charges ChargeReconciler, subs SubscriptionManager) {
	if d == nil || charges == nil || subs == nil {
		panic("webhook: RegisterBillingHandlers requires a dispatcher, a reconciler and a subscription manager")
	}
	d.Handle(EventPaymentSucceeded, paymentHandler(charges, true))
	d.Handle(EventPaymentFailed, paymentHandler(charges, false))
	d.Handle(EventSubscriptionCancelled, cancellationHandler(subs))
	d.Handle(EventPaymentMethodUpdated, paymentMethodHandler(subs))
}

func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return Terminal(fmt.Errorf("%w: missing data", ErrInvalidPayload))
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return Terminal(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}
	return nil
}

func paymentHandler(charges ChargeReconciler, succeeded bool) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		var data paymentData
		if err := decodeData(env, &data); err != nil {
			return err
		}

		u := billing.ChargeUpdate{IdempotencyKey: data.IdempotencyKey, TransactionID: data.TransactionID}
		switch {
		case succeeded:
			u.Outcome = payment.OutcomeSuccess
		case data.Error != "":
			u.Outcome = payment.OutcomeError
			u.Reason = data.Error
		default:
			u.Outcome = payment.OutcomeDeclined
			u.Reason = data.DeclineReason
		}

		err := charges.ReconcileCharge(ctx, u)
		if errors.Is(err, billing.ErrUnknownAttempt) || errors.Is(err, billing.ErrInvalidOutcome) {
			return Terminal(err)
		}
		return err
	}
}

func cancellationHandler(subs SubscriptionManager) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		var data cancellationData
		if err := decodeData(env, &data); err != nil {
			return err
		}

		_, err := subs.Cancel(ctx, data.SubscriptionID, data.AtPeriodEnd)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, subscription.ErrInvalidStateTransition):
			// a redelivery after the cancellation already took effect
			sub, gerr := subs.Get(ctx, data.SubscriptionID)
			if gerr != nil {
				return gerr
			}
			if sub.Status.Terminal() || (data.AtPeriodEnd && sub.CancelAtPeriodEnd) {
				return nil
			}
			return Terminal(err)
		case errors.Is(err, subscription.ErrSubscriptionNotFound), errors.Is(err, subscription.ErrInvalidRequest):
			return Terminal(err)
		}
		return err
	}
}

func paymentMethodHandler(subs SubscriptionManager) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		var data paymentMethodData
		if err := decodeData(env, &data); err != nil {
			return err
		}
		if data.PaymentMethodID == "" {
			return Terminal(fmt.Errorf("%w: missing payment_method_id", ErrInvalidPayload))
		}

		_, err := subs.UpdatePaymentMethod(ctx, data.SubscriptionID, data.PaymentMethodID)
		switch {
		case errors.Is(err, subscription.ErrSubscriptionNotFound),
			errors.Is(err, subscription.ErrInvalidRequest),
			errors.Is(err, subscription.ErrInvalidStateTransition):
			return Terminal(err)
		}
		return err
	}
}
