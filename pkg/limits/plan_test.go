package limits_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/scanauth/pkg/limits"
)

func TestLimitsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		plan     string
		analyses int64
		projects int64
		feature  limits.Feature
		has      bool
	}{
		{"free", limits.PlanFree, 3, 1, limits.FeaturePDFExport, false},
		{"basic", limits.PlanBasic, 25, 5, limits.FeaturePDFExport, true},
		{"premium", limits.PlanPremium, limits.Unlimited, limits.Unlimited, limits.FeatureAPIAccess, true},
		{"unknown falls back to free", "enterprise", 3, 1, limits.FeatureBasicScan, true},
		{"empty falls back to free", "", 3, 1, limits.FeatureAPIAccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := limits.LimitsFor(tt.plan)
			assert.Equal(t, tt.analyses, l.AnalysesPerMonth)
			assert.Equal(t, tt.projects, l.ProjectsMax)
			assert.Equal(t, tt.has, l.HasFeature(tt.feature))
			assert.Equal(t, tt.has, limits.HasFeature(tt.plan, tt.feature))
		})
	}
}

func TestLimitsFor_ReturnsCopy(t *testing.T) {
	t.Parallel()

	l := limits.LimitsFor(limits.PlanBasic)
	l.Features[0] = "tampered"
	assert.Equal(t, limits.FeatureBasicScan, limits.LimitsFor(limits.PlanBasic).Features[0])
}

func TestComparePlans(t *testing.T) {
	t.Parallel()

	plans := limits.DefaultPlans()

	up := limits.ComparePlans(plans[limits.PlanFree], plans[limits.PlanPremium])
	assert.True(t, up.IsUpgrade())
	assert.Contains(t, up.NewFeatures, limits.FeatureAPIAccess)
	assert.Equal(t, limits.ResourceChange{From: 3, To: limits.Unlimited}, up.IncreasedLimits[limits.ResourceAnalyses])

	down := limits.ComparePlans(plans[limits.PlanPremium], plans[limits.PlanBasic])
	assert.False(t, down.IsUpgrade())
	assert.Contains(t, down.LostFeatures, limits.FeatureAPIAccess)
	assert.Equal(t, limits.ResourceChange{From: limits.Unlimited, To: 5}, down.DecreasedLimits[limits.ResourceProjects])
}

func TestUsageInfo_Remaining(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(2), limits.UsageInfo{Current: 1, Limit: 3}.Remaining())
	assert.Equal(t, int64(0), limits.UsageInfo{Current: 5, Limit: 3}.Remaining())
	assert.Equal(t, limits.Unlimited, limits.UsageInfo{Current: 5, Limit: limits.Unlimited}.Remaining())
}
