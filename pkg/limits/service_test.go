package limits_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/limits"
)

const testPlansYAML = `
plans:
  - id: free
    name: Free
    limits:
      analyses: 1
      projects: 1
    features: [basic_scan]
  - id: team
    name: Team
    limits:
      analyses: -1
      projects: 10
    features: [basic_scan, api_access]
`

func TestService_Defaults(t *testing.T) {
	t.Parallel()

	svc, err := limits.NewService(context.Background(), limits.NewInMemSource(limits.DefaultPlans()))
	require.NoError(t, err)

	t.Run("can analyze below limit", func(t *testing.T) {
		assert.NoError(t, svc.CanAnalyze(limits.PlanFree, 2))
	})

	t.Run("limit reached", func(t *testing.T) {
		assert.ErrorIs(t, svc.CanAnalyze(limits.PlanFree, 3), limits.ErrLimitExceeded)
		assert.ErrorIs(t, svc.CanCreateProject(limits.PlanBasic, 5), limits.ErrLimitExceeded)
	})

	t.Run("unlimited", func(t *testing.T) {
		assert.NoError(t, svc.CanAnalyze(limits.PlanPremium, 1_000_000))
	})

	t.Run("plan type is case insensitive", func(t *testing.T) {
		assert.True(t, svc.HasFeature(" Premium ", limits.FeatureAPIAccess))
	})

	t.Run("unknown plan falls back", func(t *testing.T) {
		assert.Equal(t, limits.PlanFree, svc.LimitsFor("gold").PlanType)
		_, err := svc.Plan("gold")
		assert.ErrorIs(t, err, limits.ErrPlanNotFound)
	})

	t.Run("invalid resource", func(t *testing.T) {
		_, err := svc.Usage(limits.PlanFree, "storage", 1)
		assert.ErrorIs(t, err, limits.ErrInvalidResource)
	})

	t.Run("plans sorted", func(t *testing.T) {
		plans := svc.Plans()
		require.Len(t, plans, 3)
		assert.Equal(t, []string{"basic", "free", "premium"}, []string{plans[0].ID, plans[1].ID, plans[2].ID})
	})
}

func TestService_YAML(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("from bytes", func(t *testing.T) {
		t.Parallel()

		svc, err := limits.NewService(ctx, limits.NewYAMLSource([]byte(testPlansYAML)))
		require.NoError(t, err)
		l := svc.LimitsFor("team")
		assert.Equal(t, limits.Unlimited, l.AnalysesPerMonth)
		assert.Equal(t, int64(10), l.ProjectsMax)
		assert.True(t, l.HasFeature(limits.FeatureAPIAccess))
	})

	t.Run("from file via config", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testPlansYAML), 0o600))

		svc, err := limits.NewFromConfig(ctx, limits.Config{PlansFile: path, FallbackPlan: "free"})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.CanAnalyze("unknown", 1), limits.ErrLimitExceeded)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := limits.NewService(ctx, limits.NewYAMLFileSource(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorIs(t, err, limits.ErrFailedToLoadPlans)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()

		_, err := limits.NewService(ctx, limits.NewYAMLSource([]byte("plans:\n  - id: free\n    price: 4\n")))
		assert.ErrorIs(t, err, limits.ErrInvalidPlanConfiguration)
	})

	t.Run("duplicate plan rejected", func(t *testing.T) {
		t.Parallel()

		_, err := limits.NewService(ctx, limits.NewYAMLSource([]byte("plans:\n  - id: free\n  - id: free\n")))
		assert.ErrorIs(t, err, limits.ErrInvalidPlanConfiguration)
	})
}

func TestService_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing fallback", func(t *testing.T) {
		t.Parallel()

		plans := limits.DefaultPlans()
		delete(plans, limits.PlanFree)
		_, err := limits.NewService(ctx, limits.NewInMemSource(plans))
		assert.ErrorIs(t, err, limits.ErrInvalidPlanConfiguration)
	})

	t.Run("custom fallback", func(t *testing.T) {
		t.Parallel()

		svc, err := limits.NewService(ctx, limits.NewInMemSource(limits.DefaultPlans()), limits.WithFallbackPlan(limits.PlanBasic))
		require.NoError(t, err)
		assert.Equal(t, limits.PlanBasic, svc.LimitsFor("").PlanType)
	})

	t.Run("negative limit", func(t *testing.T) {
		t.Parallel()

		plans := map[string]limits.Plan{
			"free": {ID: "free", Limits: map[limits.Resource]int64{limits.ResourceAnalyses: -5}},
		}
		_, err := limits.NewService(ctx, limits.NewInMemSource(plans))
		assert.ErrorIs(t, err, limits.ErrInvalidPlanConfiguration)
	})

	t.Run("mismatched id", func(t *testing.T) {
		t.Parallel()

		plans := map[string]limits.Plan{"free": {ID: "basic"}}
		_, err := limits.NewService(ctx, limits.NewInMemSource(plans))
		assert.ErrorIs(t, err, limits.ErrInvalidPlanConfiguration)
	})
}
