package limits

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Config selects where plans come from. An empty PlansFile uses DefaultPlans.
type Config struct {
	PlansFile    string `env:"LIMITS_PLANS_FILE"`
	FallbackPlan string `env:"LIMITS_FALLBACK_PLAN" envDefault:"free"`
}

// Service answers plan questions from a loaded, immutable plan set.
type Service struct {
	plans    map[string]Plan
	fallback string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFallbackPlan sets the plan used for unknown plan types.
func WithFallbackPlan(id string) ServiceOption {
	return func(s *Service) {
		if id != "" {
			s.fallback = id
		}
	}
}

// NewService loads plans from src and validates them.
func NewService(ctx context.Context, src Source, opts ...ServiceOption) (*Service, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	s := &Service{plans: plans, fallback: PlanFree}
	for _, opt := range opts {
		opt(s)
	}

	if err := validatePlans(s.plans, s.fallback); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromConfig builds a Service from cfg.
func NewFromConfig(ctx context.Context, cfg Config) (*Service, error) {
	src := NewInMemSource(DefaultPlans())
	if cfg.PlansFile != "" {
		src = NewYAMLFileSource(cfg.PlansFile)
	}
	return NewService(ctx, src, WithFallbackPlan(cfg.FallbackPlan))
}

// Plan returns the plan with id, or ErrPlanNotFound.
func (s *Service) Plan(id string) (Plan, error) {
	p, ok := s.plans[normalizePlan(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p.clone(), nil
}

// Plans returns every plan ordered by id.
func (s *Service) Plans() []Plan {
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.clone())
	}
	slices.SortFunc(out, func(a, b Plan) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// LimitsFor returns the limits of planType, falling back to the fallback plan.
func (s *Service) LimitsFor(planType string) PlanLimits {
	p, ok := s.plans[normalizePlan(planType)]
	if !ok {
		p = s.plans[s.fallback]
	}
	return p.PlanLimits()
}

// HasFeature reports whether planType includes f.
func (s *Service) HasFeature(planType string, f Feature) bool {
	return s.LimitsFor(planType).HasFeature(f)
}

// Usage pairs used with the limit for res on planType.
func (s *Service) Usage(planType string, res Resource, used int64) (UsageInfo, error) {
	l := s.LimitsFor(planType)
	switch res {
	case ResourceAnalyses:
		return UsageInfo{Current: used, Limit: l.AnalysesPerMonth}, nil
	case ResourceProjects:
		return UsageInfo{Current: used, Limit: l.ProjectsMax}, nil
	default:
		return UsageInfo{}, ErrInvalidResource
	}
}

// CanAnalyze returns ErrLimitExceeded when used has reached the monthly
// analysis allowance of planType.
func (s *Service) CanAnalyze(planType string, used int64) error {
	return s.canUse(planType, ResourceAnalyses, used)
}

// CanCreateProject returns ErrLimitExceeded when used has reached the
// project cap of planType.
func (s *Service) CanCreateProject(planType string, used int64) error {
	return s.canUse(planType, ResourceProjects, used)
}

func (s *Service) canUse(planType string, res Resource, used int64) error {
	u, err := s.Usage(planType, res, used)
	if err != nil {
		return err
	}
	if u.Limit == Unlimited || u.Current < u.Limit {
		return nil
	}
	return ErrLimitExceeded
}

func normalizePlan(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// validatePlans ensures limits are sane and the fallback plan exists.
func validatePlans(plans map[string]Plan, fallback string) error {
	if _, ok := plans[fallback]; !ok {
		return errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("fallback plan %s is not defined", fallback))
	}
	for id, p := range plans {
		if p.ID != id {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s is registered under id %s", p.ID, id))
		}
		for res, limit := range p.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has negative %s limit: %d", id, res, limit))
			}
		}
	}
	return nil
}
