package limits

import "errors"

// Domain errors for limits operations
var (
	ErrPlanNotFound             = errors.New("limits.errors.plan_not_found")
	ErrInvalidPlanConfiguration = errors.New("limits.errors.invalid_plan_configuration")
	ErrLimitExceeded            = errors.New("limits.errors.limit_exceeded")
	ErrInvalidResource          = errors.New("limits.errors.invalid_resource")
	ErrFailedToLoadPlans        = errors.New("limits.errors.failed_to_load_plans")
)
