package limits

import (
	"maps"
	"slices"
)

// Plan describes a subscription tier and its resource/feature constraints.
type Plan struct {
	ID       string             `yaml:"id"`
	Name     string             `yaml:"name"`
	Limits   map[Resource]int64 `yaml:"limits"`
	Features []Feature          `yaml:"features"`
}

// PlanLimits is the derived view of a plan exposed to callers.
type PlanLimits struct {
	PlanType         string    `json:"plan_type"`
	AnalysesPerMonth int64     `json:"analyses_per_month"`
	ProjectsMax      int64     `json:"projects_max"`
	Features         []Feature `json:"features"`
}

// HasFeature reports whether f is part of the limits' feature set.
func (l PlanLimits) HasFeature(f Feature) bool {
	return slices.Contains(l.Features, f)
}

// PlanLimits derives the limits view from the plan. A resource missing from the
// plan is treated as zero.
func (p Plan) PlanLimits() PlanLimits {
	return PlanLimits{
		PlanType:         p.ID,
		AnalysesPerMonth: p.Limits[ResourceAnalyses],
		ProjectsMax:      p.Limits[ResourceProjects],
		Features:         slices.Clone(p.Features),
	}
}

func (p Plan) clone() Plan {
	return Plan{
		ID:       p.ID,
		Name:     p.Name,
		Limits:   maps.Clone(p.Limits),
		Features: slices.Clone(p.Features),
	}
}

// DefaultPlans returns the built-in tiers.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		PlanFree: {
			ID:   PlanFree,
			Name: "Free",
			Limits: map[Resource]int64{
				ResourceAnalyses: 3,
				ResourceProjects: 1,
			},
			Features: []Feature{FeatureBasicScan},
		},
		PlanBasic: {
			ID:   PlanBasic,
			Name: "Basic",
			Limits: map[Resource]int64{
				ResourceAnalyses: 25,
				ResourceProjects: 5,
			},
			Features: []Feature{FeatureBasicScan, FeatureFullReport, FeaturePDFExport, FeatureScanHistory},
		},
		PlanPremium: {
			ID:   PlanPremium,
			Name: "Premium",
			Limits: map[Resource]int64{
				ResourceAnalyses: Unlimited,
				ResourceProjects: Unlimited,
			},
			Features: []Feature{
				FeatureBasicScan,
				FeatureFullReport,
				FeaturePDFExport,
				FeatureScanHistory,
				FeaturePriorityScan,
				FeatureAPIAccess,
				FeatureScheduledScans,
				FeatureCompetitorWatch,
			},
		},
	}
}

var defaultPlans = DefaultPlans()

// LimitsFor returns the built-in limits for planType. Unknown or empty plan
// types get the free tier.
func LimitsFor(planType string) PlanLimits {
	p, ok := defaultPlans[planType]
	if !ok {
		p = defaultPlans[PlanFree]
	}
	return p.PlanLimits()
}

// HasFeature reports whether the built-in planType includes f.
func HasFeature(planType string, f Feature) bool {
	return LimitsFor(planType).HasFeature(f)
}

// PlanComparison contains the differences between two plans.
type PlanComparison struct {
	NewFeatures     []Feature
	LostFeatures    []Feature
	IncreasedLimits map[Resource]ResourceChange
	DecreasedLimits map[Resource]ResourceChange
}

// ResourceChange represents a change in resource limit.
type ResourceChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// IsUpgrade reports whether nothing is lost moving to the target plan.
func (c *PlanComparison) IsUpgrade() bool {
	return len(c.LostFeatures) == 0 && len(c.DecreasedLimits) == 0
}

// ComparePlans returns the differences between current and target plans.
func ComparePlans(current, target Plan) *PlanComparison {
	c := &PlanComparison{
		NewFeatures:     make([]Feature, 0),
		LostFeatures:    make([]Feature, 0),
		IncreasedLimits: make(map[Resource]ResourceChange),
		DecreasedLimits: make(map[Resource]ResourceChange),
	}

	for _, f := range target.Features {
		if !slices.Contains(current.Features, f) {
			c.NewFeatures = append(c.NewFeatures, f)
		}
	}
	for _, f := range current.Features {
		if !slices.Contains(target.Features, f) {
			c.LostFeatures = append(c.LostFeatures, f)
		}
	}

	for _, res := range []Resource{ResourceAnalyses, ResourceProjects} {
		from, to := current.Limits[res], target.Limits[res]
		if from == to {
			continue
		}
		change := ResourceChange{From: from, To: to}
		switch {
		case from == Unlimited:
			c.DecreasedLimits[res] = change
		case to == Unlimited, to > from:
			c.IncreasedLimits[res] = change
		default:
			c.DecreasedLimits[res] = change
		}
	}

	return c
}
