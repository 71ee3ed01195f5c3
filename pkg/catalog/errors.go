package catalog

import "errors"

var (
	ErrInvalidPlan       = errors.New("catalog: invalid plan definition")
	ErrDuplicatePlanCode = errors.New("catalog: plan code already exists")
	ErrPlanNotFound      = errors.New("catalog: plan not found")
	ErrPlanInUse         = errors.New("catalog: plan is referenced by subscriptions")
	ErrInvalidSeedFile   = errors.New("catalog: invalid plan seed file")
)
