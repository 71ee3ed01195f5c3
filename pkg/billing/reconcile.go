package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/locker"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/subscription"
)

// ChargeUpdate is an asynchronous verdict on a charge, usually delivered by
// a processor webhook.
type ChargeUpdate struct {
	IdempotencyKey string
	Outcome        payment.Outcome
	TransactionID  string
	Reason         string
}

func (u ChargeUpdate) validate() error {
	if u.IdempotencyKey == "" {
		return fmt.Errorf("%w: empty idempotency key", ErrUnknownAttempt)
	}
	if !u.Outcome.Final() {
		return fmt.Errorf("%w: got %q", ErrInvalidOutcome, u.Outcome)
	}
	return nil
}

// ReconcileCharge records u against the attempt it refers to and, for cycle
// charges, applies it to the subscription if the subscription still sits on
// that cycle and try. A pending attempt is finalized; a final attempt with
// a conflicting verdict gets a correction attempt appended. Delivering the
// same update twice, or before or after the sweep saved its own result,
// leaves the subscription in the same state.
func (e *Engine) ReconcileCharge(ctx context.Context, u ChargeUpdate) error {
	if err := u.validate(); err != nil {
		return err
	}

	first, err := e.attempts.LatestByKey(ctx, u.IdempotencyKey)
	if err != nil {
		if errors.Is(err, payment.ErrAttemptNotFound) {
			return errors.Join(ErrUnknownAttempt, err)
		}
		return errors.Join(errors.New("billing: failed to look up attempt"), err)
	}

	unlock, err := locker.Acquire(ctx, e.locker, locker.SubscriptionKey(first.SubscriptionID.String()), e.lockWait)
	if err != nil {
		if errors.Is(err, locker.ErrLocked) {
			return ErrSubscriptionLocked
		}
		return errors.Join(errors.New("billing: failed to acquire lock"), err)
	}
	defer e.release(ctx, first.SubscriptionID, unlock)

	// The sweep may have finalized the attempt while we waited for the lock.
	current, err := e.attempts.LatestByKey(ctx, u.IdempotencyKey)
	if err != nil {
		return errors.Join(errors.New("billing: failed to look up attempt"), err)
	}

	effective, err := e.recordUpdate(ctx, current, u)
	if err != nil {
		return err
	}

	log := e.logger.With(
		logger.SubscriptionID(effective.SubscriptionID),
		logger.AttemptID(effective.ID),
		logger.IdempotencyKey(u.IdempotencyKey),
		slog.String("outcome", string(effective.Outcome)))

	if !effective.IsCycleCharge() {
		log.InfoContext(ctx, "charge reconciled", slog.String("kind", string(effective.Kind)))
		return nil
	}

	return e.applyCycleUpdate(ctx, effective, u.IdempotencyKey, log)
}

func (e *Engine) recordUpdate(ctx context.Context, current payment.Attempt, u ChargeUpdate) (payment.Attempt, error) {
	now := e.now().UTC()
	res := payment.Result{
		Outcome:       u.Outcome,
		TransactionID: u.TransactionID,
		CompletedAt:   now,
	}
	switch u.Outcome {
	case payment.OutcomeDeclined:
		res.DeclineReason = u.Reason
	case payment.OutcomeError:
		res.Error = u.Reason
	}

	if !current.Outcome.Final() {
		final, err := e.attempts.FinalizeAttempt(ctx, current.ID, res)
		if err == nil {
			return final, nil
		}
		if !errors.Is(err, payment.ErrAttemptFinalized) {
			return payment.Attempt{}, errors.Join(errors.New("billing: failed to finalize attempt"), err)
		}
		current = final
	}

	if current.Succeeded() == (u.Outcome == payment.OutcomeSuccess) {
		return current, nil
	}

	correction := payment.Attempt{
		ID:             uuid.New(),
		SubscriptionID: current.SubscriptionID,
		Kind:           payment.KindCorrection,
		Cycle:          current.Cycle,
		Amount:         current.Amount,
		Currency:       current.Currency,
		IdempotencyKey: current.IdempotencyKey,
		Outcome:        res.Outcome,
		TransactionID:  res.TransactionID,
		DeclineReason:  res.DeclineReason,
		Error:          res.Error,
		AttemptedAt:    now,
		CompletedAt:    &now,
	}
	if err := e.attempts.CreateAttempt(ctx, correction); err != nil {
		return payment.Attempt{}, errors.Join(errors.New("billing: failed to record correction"), err)
	}
	e.logger.WarnContext(ctx, "charge outcome corrected by processor",
		logger.SubscriptionID(current.SubscriptionID),
		logger.IdempotencyKey(current.IdempotencyKey),
		slog.String("recorded", string(current.Outcome)),
		slog.String("reported", string(u.Outcome)))
	return correction, nil
}

func (e *Engine) applyCycleUpdate(ctx context.Context, a payment.Attempt, key string, log *slog.Logger) error {
	sub, err := e.subs.Get(ctx, a.SubscriptionID)
	if err != nil {
		return err
	}

	switch {
	case sub.BillingCycle != a.Cycle:
		log.InfoContext(ctx, "charge reconciled, cycle already settled")
		return nil
	case !sub.Status.Billable():
		log.WarnContext(ctx, "charge reconciled for a subscription that is no longer billable",
			logger.Status(string(sub.Status)))
		return nil
	case !a.Succeeded() && key != payment.IdempotencyKey(sub.ID, sub.BillingCycle, sub.RetryCount):
		log.InfoContext(ctx, "charge reconciled, failure already recorded")
		return nil
	}

	plan, err := e.plans.GetPlan(ctx, sub.PlanCode)
	if err != nil {
		return err
	}

	outcome, err := e.applyAttempt(ctx, &sub, a, plan, e.now().UTC())
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidStateTransition) {
			log.WarnContext(ctx, "charge reconciled, transition not applicable", logger.Error(err))
			return nil
		}
		return err
	}
	if err := e.subs.Save(ctx, &sub); err != nil {
		return err
	}
	if outcome == OutcomeExpired {
		e.alertExpired(ctx, sub)
	}
	log.InfoContext(ctx, "charge reconciled", slog.String("result", string(outcome)))
	return nil
}
