package catalog

import (
	"context"
	"time"
)

// Store persists plan definitions.
type Store interface {
	// CreatePlan inserts a plan, returning ErrDuplicatePlanCode when the code is taken.
	CreatePlan(ctx context.Context, plan Plan) error
	// GetPlan returns ErrPlanNotFound for unknown codes.
	GetPlan(ctx context.Context, code string) (Plan, error)
	// ListPlans returns plans ordered by code.
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	SetPlanActive(ctx context.Context, code string, active bool, at time.Time) error
	DeletePlan(ctx context.Context, code string) error
}

// UsageChecker reports whether any subscription references a plan.
type UsageChecker interface {
	PlanInUse(ctx context.Context, code string) (bool, error)
}

// UsageCheckerFunc adapts a function to UsageChecker.
type UsageCheckerFunc func(ctx context.Context, code string) (bool, error)

func (f UsageCheckerFunc) PlanInUse(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}
