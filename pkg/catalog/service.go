package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// Service is the plan catalog.
type Service struct {
	store  Store
	usage  UsageChecker
	now    func() time.Time
	logger *slog.Logger
}

// Option configures the catalog service.
type Option func(*Service)

// WithUsageChecker wires the check used before hard-deleting a plan.
// Without it Delete refuses every plan.
func WithUsageChecker(u UsageChecker) Option {
	return func(s *Service) { s.usage = u }
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

// NewService creates a catalog. Panics on a nil store, since the service is
// wired once at startup.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		panic("catalog: store is required")
	}
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePlan validates spec and stores a new plan.
func (s *Service) CreatePlan(ctx context.Context, spec Spec) (Plan, error) {
	if err := spec.Validate(); err != nil {
		return Plan{}, err
	}

	now := s.now().UTC()
	plan := Plan{
		Code:          spec.Code,
		Name:          spec.Name,
		Amount:        spec.Amount,
		Currency:      spec.Currency,
		IntervalUnit:  spec.IntervalUnit,
		IntervalCount: spec.IntervalCount,
		TrialDays:     spec.TrialDays,
		Active:        !spec.Inactive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreatePlan(ctx, plan); err != nil {
		if errors.Is(err, ErrDuplicatePlanCode) {
			return Plan{}, err
		}
		return Plan{}, errors.Join(errors.New("catalog: failed to create plan"), err)
	}

	s.logger.InfoContext(ctx, "plan created",
		logger.PlanCode(plan.Code),
		slog.Int64("amount", plan.Amount),
		slog.String("currency", plan.Currency),
		slog.String("interval", plan.Interval()))

	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, code string) (Plan, error) {
	if code == "" {
		return Plan{}, ErrPlanNotFound
	}
	return s.store.GetPlan(ctx, code)
}

func (s *Service) ListActive(ctx context.Context) ([]Plan, error) {
	return s.store.ListPlans(ctx, true)
}

func (s *Service) ListAll(ctx context.Context) ([]Plan, error) {
	return s.store.ListPlans(ctx, false)
}

// Deactivate hides a plan from new subscriptions. Existing subscriptions keep renewing on it.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	return s.setActive(ctx, code, false)
}

func (s *Service) Activate(ctx context.Context, code string) error {
	return s.setActive(ctx, code, true)
}

func (s *Service) setActive(ctx context.Context, code string, active bool) error {
	if err := s.store.SetPlanActive(ctx, code, active, s.now().UTC()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "plan activation changed", logger.PlanCode(code), slog.Bool("active", active))
	return nil
}

// Delete hard-deletes a plan that was never referenced by a subscription.
func (s *Service) Delete(ctx context.Context, code string) error {
	if _, err := s.store.GetPlan(ctx, code); err != nil {
		return err
	}
	if s.usage == nil {
		return ErrPlanInUse
	}
	inUse, err := s.usage.PlanInUse(ctx, code)
	if err != nil {
		return errors.Join(errors.New("catalog: failed to check plan usage"), err)
	}
	if inUse {
		return ErrPlanInUse
	}
	return s.store.DeletePlan(ctx, code)
}
