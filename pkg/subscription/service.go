package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/locker"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/payment"
	"github.com/dmitrymomot/billing/pkg/proration"
)

// PlanGetter resolves plans by code.
type PlanGetter interface {
	GetPlan(ctx context.Context, code string) (catalog.Plan, error)
}

// Charger records and sends a charge. payment.Charger implements it.
type Charger interface {
	Charge(ctx context.Context, spec payment.ChargeSpec) (payment.Attempt, error)
}

// Service implements the user-facing subscription operations. Every
// mutation runs under the per-subscription lock shared with the billing
// engine and webhook processor.
type Service struct {
	store     Store
	plans     PlanGetter
	charger   Charger
	locker    locker.Locker
	lockWait  time.Duration
	lifecycle *Lifecycle
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Service)

// WithLocker sets the lock backend. Defaults to an in-process table.
func WithLocker(l locker.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLockWait sets how long an operation waits for a busy subscription
// before failing with ErrSubscriptionLocked. Defaults to 5s.
func WithLockWait(d time.Duration) Option {
	return func(s *Service) { s.lockWait = d }
}

func WithLifecycle(l *Lifecycle) Option {
	return func(s *Service) {
		if l != nil {
			s.lifecycle = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, plans PlanGetter, charger Charger, opts ...Option) *Service {
	if store == nil {
		panic("subscription: store is required")
	}
	if plans == nil {
		panic("subscription: plan getter is required")
	}
	if charger == nil {
		panic("subscription: charger is required")
	}
	s := &Service{
		store:    store,
		plans:    plans,
		charger:  charger,
		locker:   locker.NewMemory(),
		lockWait: 5 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lifecycle == nil {
		s.lifecycle = NewLifecycle()
	}
	return s
}

// Lifecycle returns the transition rules the service applies.
func (s *Service) Lifecycle() *Lifecycle { return s.lifecycle }

// Create starts a subscription. Without a trial the first period is charged
// before anything is stored, so a declined card leaves no record behind.
//
// With an idempotency key the subscription id, and with it the charge key,
// is derived from the customer and the key. A retried request then returns
// the stored subscription, or replays the recorded charge and stores it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Subscription, error) {
	if err := req.validate(); err != nil {
		return Subscription{}, err
	}

	id := uuid.New()
	if req.IdempotencyKey != "" {
		id = CreateID(req.CustomerID, req.IdempotencyKey)
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil:
			return replayed(existing, req)
		case !errors.Is(err, ErrSubscriptionNotFound):
			return Subscription{}, err
		}
	}

	plan, err := s.plans.GetPlan(ctx, req.PlanCode)
	if err != nil {
		return Subscription{}, err
	}
	if !plan.Active {
		return Subscription{}, ErrPlanInactive
	}

	behavior := ProrateNone
	if req.Prorated {
		behavior = ProrateImmediately
	}

	now := s.now().UTC()
	sub := s.lifecycle.Start(StartParams{
		ID:              id,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Trial:           req.StartTrial == nil || *req.StartTrial,
		Proration:       behavior,
	}, plan, now)

	var paid *payment.Attempt
	if sub.Status == StatusActive {
		attempt, err := s.charger.Charge(ctx, payment.ChargeSpec{
			SubscriptionID:  sub.ID,
			Kind:            payment.KindInitial,
			Cycle:           1,
			Amount:          plan.Amount,
			Currency:        plan.Currency,
			PaymentMethodID: sub.PaymentMethodID,
			IdempotencyKey:  payment.IdempotencyKey(sub.ID, 1, 0),
			Description:     "Subscription to " + plan.Name,
		})
		if err != nil {
			return Subscription{}, errors.Join(ErrPaymentFailed, err)
		}
		if err := chargeError(attempt); err != nil {
			return Subscription{}, err
		}
		paid = &attempt
	}

	if err := s.store.Create(ctx, &sub); err != nil {
		if errors.Is(err, ErrDuplicateSubscription) && req.IdempotencyKey != "" {
			// A concurrent retry stored it first.
			existing, gerr := s.store.Get(ctx, sub.ID)
			if gerr == nil {
				return replayed(existing, req)
			}
		}
		if paid != nil {
			s.logger.ErrorContext(ctx, "subscription paid but not stored",
				logger.SubscriptionID(sub.ID),
				logger.AttemptID(paid.ID),
				logger.IdempotencyKey(paid.IdempotencyKey),
				slog.String("transaction_id", paid.TransactionID),
				slog.Bool("retryable", req.IdempotencyKey != ""),
				logger.Error(err))
			return Subscription{}, errors.Join(ErrNotStored, err)
		}
		return Subscription{}, errors.Join(errors.New("subscription: failed to store subscription"), err)
	}

	s.logger.InfoContext(ctx, "subscription created",
		logger.SubscriptionID(sub.ID),
		logger.PlanCode(sub.PlanCode),
		logger.Status(string(sub.Status)),
		slog.String("customer_id", sub.CustomerID))

	return sub, nil
}

// createNamespace scopes ids derived by CreateID.
var createNamespace = uuid.MustParse("0b6f1c1e-5a8e-4d5b-9a0e-3c2f6d7b8a91")

// CreateID derives the subscription id for an idempotent create request.
func CreateID(customerID, idempotencyKey string) uuid.UUID {
	return uuid.NewSHA1(createNamespace, []byte(customerID+"\x00"+idempotencyKey))
}

func replayed(existing Subscription, req CreateRequest) (Subscription, error) {
	if existing.CustomerID != req.CustomerID || (existing.PlanCode != req.PlanCode && existing.PlanChanges == 0) {
		return Subscription{}, ErrIdempotencyConflict
	}
	return existing, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Subscription, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// PreviewChange computes the proration a plan change would produce right now
// without charging or storing anything.
func (s *Service) PreviewChange(ctx context.Context, id uuid.UUID, newPlanCode string) (proration.Result, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return proration.Result{}, err
	}
	_, _, res, err := s.planChange(ctx, sub, UpdateRequest{NewPlanCode: newPlanCode}, s.now().UTC())
	return res, err
}

// ChangePlan switches the subscription to another plan. A positive prorated
// difference is charged immediately and the plan stays unchanged if that
// charge does not succeed. A negative difference becomes account credit.
func (s *Service) ChangePlan(ctx context.Context, id uuid.UUID, req UpdateRequest) (Subscription, proration.Result, error) {
	var res proration.Result
	sub, err := s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		_, newPlan, r, err := s.planChange(ctx, *sub, req, now)
		if err != nil {
			return err
		}
		res = r

		if r.IsCharge() {
			attempt, err := s.charger.Charge(ctx, payment.ChargeSpec{
				SubscriptionID:  sub.ID,
				Kind:            payment.KindProration,
				Cycle:           sub.BillingCycle,
				Amount:          r.NetAmount,
				Currency:        r.Currency,
				PaymentMethodID: sub.PaymentMethodID,
				IdempotencyKey:  payment.ProrationKey(sub.ID, sub.PlanChanges+1),
				Description:     "Plan change to " + newPlan.Name,
			})
			if err != nil {
				return errors.Join(ErrPaymentFailed, err)
			}
			if err := chargeError(attempt); err != nil {
				return err
			}
		}

		var credit int64
		if r.IsCredit() {
			credit = -r.NetAmount
		}
		return s.lifecycle.ChangePlan(sub, newPlan, credit, now)
	})
	if err != nil {
		return Subscription{}, proration.Result{}, err
	}
	return sub, res, nil
}

// planChange validates a change and returns the old and new plans with the
// adjustment to apply. Trials and ProrateNone yield a zero adjustment.
func (s *Service) planChange(ctx context.Context, sub Subscription, req UpdateRequest, now time.Time) (catalog.Plan, catalog.Plan, proration.Result, error) {
	var none proration.Result

	if req.NewPlanCode == "" {
		return catalog.Plan{}, catalog.Plan{}, none, fmt.Errorf("%w: new plan code is required", ErrInvalidRequest)
	}
	if req.ProrationBehavior != "" && !req.ProrationBehavior.Valid() {
		return catalog.Plan{}, catalog.Plan{}, none, fmt.Errorf("%w: unknown proration behavior %q", ErrInvalidRequest, req.ProrationBehavior)
	}
	if sub.Status != StatusActive && sub.Status != StatusTrialing {
		return catalog.Plan{}, catalog.Plan{}, none, fmt.Errorf("%w: cannot change plan while %s", ErrInvalidStateTransition, sub.Status)
	}
	if req.NewPlanCode == sub.PlanCode {
		return catalog.Plan{}, catalog.Plan{}, none, ErrSamePlan
	}

	oldPlan, err := s.plans.GetPlan(ctx, sub.PlanCode)
	if err != nil {
		return catalog.Plan{}, catalog.Plan{}, none, err
	}
	newPlan, err := s.plans.GetPlan(ctx, req.NewPlanCode)
	if err != nil {
		return catalog.Plan{}, catalog.Plan{}, none, err
	}
	if !newPlan.Active {
		return catalog.Plan{}, catalog.Plan{}, none, ErrPlanInactive
	}

	behavior := sub.ProrationBehavior
	if req.ProrationBehavior != "" {
		behavior = req.ProrationBehavior
	}

	if sub.Status == StatusTrialing || behavior == ProrateNone {
		if oldPlan.Currency != newPlan.Currency {
			return catalog.Plan{}, catalog.Plan{}, none, fmt.Errorf("%w: %s vs %s", proration.ErrCurrencyMismatch, oldPlan.Currency, newPlan.Currency)
		}
		return oldPlan, newPlan, proration.Result{
			Currency:          newPlan.Currency,
			EffectiveDate:     now,
			RemainingFraction: proration.RemainingFraction(proration.Period{Start: sub.CurrentPeriodStart, End: sub.CurrentPeriodEnd}, now),
		}, nil
	}

	res, err := proration.Calculate(oldPlan, newPlan, proration.Period{
		Start: sub.CurrentPeriodStart,
		End:   sub.CurrentPeriodEnd,
	}, now)
	if err != nil {
		return catalog.Plan{}, catalog.Plan{}, none, err
	}
	return oldPlan, newPlan, res, nil
}

// Cancel ends the subscription immediately or at the end of the current period.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, atPeriodEnd bool) (Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		return s.lifecycle.Cancel(sub, atPeriodEnd, now)
	})
}

func (s *Service) Pause(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		return s.lifecycle.Pause(sub, now)
	})
}

func (s *Service) Resume(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		return s.lifecycle.Resume(sub, now)
	})
}

func (s *Service) UpdatePaymentMethod(ctx context.Context, id uuid.UUID, paymentMethodID string) (Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		return s.lifecycle.UpdatePaymentMethod(sub, paymentMethodID, now)
	})
}

// mutate loads the subscription under its lock, applies fn and saves the result.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*Subscription, time.Time) error) (Subscription, error) {
	unlock, err := locker.Acquire(ctx, s.locker, locker.SubscriptionKey(id.String()), s.lockWait)
	if err != nil {
		if errors.Is(err, locker.ErrLocked) {
			return Subscription{}, ErrSubscriptionLocked
		}
		return Subscription{}, errors.Join(errors.New("subscription: failed to acquire lock"), err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release subscription lock", logger.SubscriptionID(id), logger.Error(err))
		}
	}()

	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	from := sub.Status

	if err := fn(&sub, s.now().UTC()); err != nil {
		return Subscription{}, err
	}

	if err := s.store.Save(ctx, &sub); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			return Subscription{}, err
		}
		return Subscription{}, errors.Join(errors.New("subscription: failed to save subscription"), err)
	}

	s.logger.InfoContext(ctx, "subscription updated",
		logger.SubscriptionID(sub.ID),
		logger.PlanCode(sub.PlanCode),
		logger.Transition(string(from), string(sub.Status)),
		slog.Bool("cancel_at_period_end", sub.CancelAtPeriodEnd))

	return sub, nil
}

func (r CreateRequest) validate() error {
	var errs []error
	if r.CustomerID == "" {
		errs = append(errs, errors.New("customer id is required"))
	}
	if r.PlanCode == "" {
		errs = append(errs, errors.New("plan code is required"))
	}
	if r.PaymentMethodID == "" {
		errs = append(errs, errors.New("payment method id is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidRequest}, errs...)...)
	}
	return nil
}

func chargeError(a payment.Attempt) error {
	switch a.Outcome {
	case payment.OutcomeSuccess:
		return nil
	case payment.OutcomeDeclined:
		return fmt.Errorf("%w: %s", ErrPaymentDeclined, a.DeclineReason)
	default:
		return fmt.Errorf("%w: %s", ErrPaymentFailed, a.Error)
	}
}
