package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/statemachine"
)

// TransitionObserver is notified after every applied status transition.
type TransitionObserver func(from, to Status, event Event)

// Lifecycle owns every mutation of a Subscription. Each method works on a
// copy and only writes it back when the transition is valid, so a rejected
// transition leaves the record untouched.
type Lifecycle struct {
	machine  *statemachine.Machine[Status, Event]
	policy   RetryPolicy
	observer TransitionObserver
}

type LifecycleOption func(*Lifecycle)

func WithRetryPolicy(p RetryPolicy) LifecycleOption {
	return func(l *Lifecycle) { l.policy = p }
}

func WithTransitionObserver(o TransitionObserver) LifecycleOption {
	return func(l *Lifecycle) { l.observer = o }
}

func cancelRequested(_ Status, _ Event, data any) bool {
	s, ok := data.(*Subscription)
	return ok && s.CancelAtPeriodEnd
}

func newMachine() *statemachine.Machine[Status, Event] {
	return statemachine.MustNew(
		statemachine.WithTerminal[Status, Event](StatusCancelled, StatusExpired),
		statemachine.WithTransition(StatusActive, EventChargeSucceeded, []Status{StatusTrialing, StatusActive, StatusPastDue}),
		statemachine.WithTransition(StatusPastDue, EventChargeFailed, []Status{StatusTrialing, StatusActive, StatusPastDue}),
		statemachine.WithTransition(StatusExpired, EventRetriesExhausted, []Status{StatusTrialing, StatusActive, StatusPastDue}),
		statemachine.WithTransition(StatusCancelled, EventCancel, []Status{StatusTrialing, StatusActive, StatusPastDue, StatusPaused}),
		statemachine.WithTransition(StatusCancelled, EventPeriodEnded, []Status{StatusTrialing, StatusActive, StatusPastDue}, cancelRequested),
		statemachine.WithTransition(StatusPaused, EventPause, []Status{StatusActive}),
		statemachine.WithTransition(StatusActive, EventResume, []Status{StatusPaused}),
	)
}

func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		machine: newMachine(),
		policy:  DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the retry policy in effect.
func (l *Lifecycle) Policy() RetryPolicy { return l.policy }

// Can reports whether event is accepted for s in its current state.
func (l *Lifecycle) Can(s Subscription, event Event) bool {
	return l.machine.Can(s.Status, event, &s)
}

// StartParams describes a new subscription.
type StartParams struct {
	ID              uuid.UUID
	CustomerID      string
	PaymentMethodID string
	Trial           bool
	Proration       ProrationBehavior
}

// Start builds a new subscription. With a trial it is trialing until the
// trial ends and first billed then. Without one it is active for a first
// period that the caller must pay for as cycle 1 before persisting it.
func (l *Lifecycle) Start(p StartParams, plan catalog.Plan, now time.Time) Subscription {
	s := Subscription{
		ID:                 p.ID,
		CustomerID:         p.CustomerID,
		PlanCode:           plan.Code,
		PaymentMethodID:    p.PaymentMethodID,
		ProrationBehavior:  p.Proration,
		CurrentPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if !s.ProrationBehavior.Valid() {
		s.ProrationBehavior = ProrateImmediately
	}

	if p.Trial && plan.HasTrial() {
		trialEnd := plan.TrialEnd(now)
		s.Status = StatusTrialing
		s.TrialEndsAt = &trialEnd
		s.CurrentPeriodEnd = trialEnd
		s.NextBillingDate = trialEnd
		s.BillingAnchorDay = trialEnd.Day()
		s.BillingCycle = 1
		return s
	}

	end := plan.NextPeriodEnd(now)
	s.Status = StatusActive
	s.BillingAnchorDay = now.Day()
	s.CurrentPeriodEnd = end
	s.NextBillingDate = end
	s.BillingCycle = 2
	return s
}

// ChargeSucceeded records a paid cycle: the period rolls forward by one plan
// interval from the previous period end, the cycle counter advances, retry
// state is cleared and creditUsed is taken off the credit balance.
func (l *Lifecycle) ChargeSucceeded(s *Subscription, plan catalog.Plan, creditUsed int64, now time.Time) error {
	return l.apply(s, EventChargeSucceeded, now, func(next *Subscription) {
		start := next.CurrentPeriodEnd
		end := plan.AnchoredPeriodEnd(start, next.BillingAnchorDay)
		if !end.After(now) {
			// Sweeps were missed for more than a whole interval; re-anchor instead of billing the gap.
			start, end = now, plan.NextPeriodEnd(now)
			next.BillingAnchorDay = now.Day()
		}
		next.CurrentPeriodStart = start
		next.CurrentPeriodEnd = end
		next.NextBillingDate = end
		next.BillingCycle++
		next.RetryCount = 0
		next.PastDueSince = nil
		next.CreditBalance = max(next.CreditBalance-creditUsed, 0)
	})
}

// ChargeFailed records a failed cycle charge. The subscription becomes past
// due with the next retry scheduled, or expires once the policy is exhausted.
func (l *Lifecycle) ChargeFailed(s *Subscription, now time.Time) error {
	failures := s.RetryCount + 1
	if l.policy.exhausted(failures, s.PastDueSince, now) {
		return l.apply(s, EventRetriesExhausted, now, func(next *Subscription) {
			next.RetryCount = failures
			next.EndedAt = &now
		})
	}

	return l.apply(s, EventChargeFailed, now, func(next *Subscription) {
		next.RetryCount = failures
		if next.PastDueSince == nil {
			next.PastDueSince = &now
		}
		next.NextBillingDate = l.policy.nextAttempt(next.CurrentPeriodEnd, failures, now)
	})
}

// PeriodEnded ends a subscription flagged for cancellation at period end.
func (l *Lifecycle) PeriodEnded(s *Subscription, now time.Time) error {
	return l.apply(s, EventPeriodEnded, now, func(next *Subscription) {
		next.EndedAt = &now
	})
}

// Cancel ends the subscription now, or flags it to end when the current
// period (or trial) is over. A paused subscription flagged this way ends at
// the end of the period it resumes into.
func (l *Lifecycle) Cancel(s *Subscription, atPeriodEnd bool, now time.Time) error {
	if !atPeriodEnd {
		return l.apply(s, EventCancel, now, func(next *Subscription) {
			next.EndedAt = &now
		})
	}

	flagged := *s
	flagged.CancelAtPeriodEnd = true
	if s.Status == StatusPaused {
		// Paused subscriptions are not swept; the flag applies once resumed.
		flagged.Status = StatusActive
	}
	if _, err := l.machine.Next(flagged.Status, EventPeriodEnded, &flagged); err != nil {
		return errors.Join(ErrInvalidStateTransition, err)
	}
	if !s.CancelAtPeriodEnd {
		s.CancelAtPeriodEnd = true
		s.UpdatedAt = now
	}
	return nil
}

// Pause stops billing until Resume.
func (l *Lifecycle) Pause(s *Subscription, now time.Time) error {
	return l.apply(s, EventPause, now, func(next *Subscription) {
		next.PausedAt = &now
	})
}

// Resume reactivates a paused subscription and pushes the period end and
// next billing date forward by the time spent paused.
func (l *Lifecycle) Resume(s *Subscription, now time.Time) error {
	return l.apply(s, EventResume, now, func(next *Subscription) {
		if next.PausedAt != nil {
			if paused := now.Sub(*next.PausedAt); paused > 0 {
				next.CurrentPeriodEnd = next.CurrentPeriodEnd.Add(paused)
				next.NextBillingDate = next.NextBillingDate.Add(paused)
				next.BillingAnchorDay = next.CurrentPeriodEnd.Day()
			}
		}
		next.PausedAt = nil
	})
}

// ChangePlan moves the subscription to plan without changing its status.
// credit is added to the balance consumed by the next renewal.
func (l *Lifecycle) ChangePlan(s *Subscription, plan catalog.Plan, credit int64, now time.Time) error {
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return fmt.Errorf("%w: cannot change plan while %s", ErrInvalidStateTransition, s.Status)
	}
	if credit < 0 {
		return fmt.Errorf("%w: negative credit %d", ErrInvalidRequest, credit)
	}
	s.PlanCode = plan.Code
	s.PlanChanges++
	s.CreditBalance += credit
	s.UpdatedAt = now
	return nil
}

// UpdatePaymentMethod swaps the stored payment method reference.
func (l *Lifecycle) UpdatePaymentMethod(s *Subscription, paymentMethodID string, now time.Time) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: subscription is %s", ErrInvalidStateTransition, s.Status)
	}
	if paymentMethodID == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidRequest)
	}
	s.PaymentMethodID = paymentMethodID
	s.UpdatedAt = now
	return nil
}

func (l *Lifecycle) apply(s *Subscription, event Event, now time.Time, mutate func(*Subscription)) error {
	to, err := l.machine.Next(s.Status, event, s)
	if err != nil {
		return errors.Join(ErrInvalidStateTransition, err)
	}

	next := *s
	from := next.Status
	mutate(&next)
	next.Status = to
	next.UpdatedAt = now
	*s = next

	if l.observer != nil {
		l.observer(from, to, event)
	}
	return nil
}
