package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/validator"
	"github.com/dmitrymomot/scanauth/svc/auth"
)

func TestManager_Profile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())

		_, err := h.mgr.CreateProfile(ctx, profile.Fields{})
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		_, err = h.mgr.UpdateProfile(ctx, profile.Fields{Company: profile.String("Acme")})
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("update replaces the current profile", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		signInAs(t, h, newSession(t, "a@b.com", nil))

		p, err := h.mgr.UpdateProfile(ctx, profile.Fields{Company: profile.String(" Acme "), PlanType: profile.String("Premium")})
		require.NoError(t, err)
		assert.Equal(t, "Acme", p.Company)
		assert.Equal(t, "premium", h.mgr.CurrentProfile().PlanType)
	})

	t.Run("returned profiles do not share settings", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		signInAs(t, h, newSession(t, "a@b.com", nil))

		p, err := h.mgr.UpdateProfile(ctx, profile.Fields{Settings: map[string]any{"theme": "dark"}})
		require.NoError(t, err)
		p.Settings["theme"] = "light"

		cur := h.mgr.CurrentProfile()
		require.NotNil(t, cur)
		cur.Settings["theme"] = "blue"
		cur.Settings["extra"] = true

		again := h.mgr.CurrentProfile()
		assert.Equal(t, map[string]any{"theme": "dark"}, again.Settings)
	})

	t.Run("create after a failed reconcile", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		h.store.failGet.Store(true)
		signInAs(t, h, newSession(t, "a@b.com", nil))
		require.Nil(t, h.mgr.CurrentProfile())
		h.store.failGet.Store(false)

		p, err := h.mgr.CreateProfile(ctx, profile.Fields{FirstName: profile.String("jo")})
		require.NoError(t, err)
		assert.Equal(t, "Jo", p.FirstName)
		assert.Equal(t, p.ID, h.mgr.CurrentProfile().ID)
	})
}

func TestManager_Focus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, testConfig())
	h.store.failGet.Store(true)
	signInAs(t, h, newSession(t, "a@b.com", nil))
	require.Nil(t, h.mgr.CurrentProfile())

	h.store.failGet.Store(false)
	require.NoError(t, h.mgr.Focus(ctx))
	require.NotNil(t, h.mgr.CurrentProfile())

	// Throttled: the store failing again is never observed.
	h.store.failGet.Store(true)
	require.NoError(t, h.mgr.Focus(ctx))
	assert.NotNil(t, h.mgr.CurrentProfile())
}

func TestManager_Passwords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reset falls back to the configured redirect", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.PasswordResetRedirect = "https://app.example.com/reset"
		h := newHarness(t, cfg)

		var got string
		h.provider.ResetPasswordFunc = func(_ context.Context, email, redirectTo string) error {
			assert.Equal(t, "a@b.com", email)
			got = redirectTo
			return nil
		}

		require.NoError(t, h.mgr.ResetPassword(ctx, "a@b.com", ""))
		assert.Equal(t, cfg.PasswordResetRedirect, got)
	})

	t.Run("reset maps provider errors", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		h.provider.ResetPasswordFunc = func(context.Context, string, string) error {
			return identity.ErrUnavailable
		}
		assert.ErrorIs(t, h.mgr.ResetPassword(ctx, "a@b.com", "x"), auth.ErrTransientNetwork)
	})

	t.Run("update requires a session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		assert.ErrorIs(t, h.mgr.UpdatePassword(ctx, "N3wPassword"), auth.ErrNotAuthenticated)
	})

	t.Run("weak password is rejected locally", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		signInAs(t, h, newSession(t, "a@b.com", nil))

		require.ErrorIs(t, h.mgr.UpdatePassword(ctx, "password"), validator.ErrValidationFailed)
		assert.Zero(t, h.provider.Calls("UpdatePassword"))
		assert.Equal(t, auth.StateAuthenticated, h.mgr.State())
	})

	t.Run("update sends the current credential", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		s := newSession(t, "a@b.com", nil)
		signInAs(t, h, s)

		var token string
		h.provider.UpdatePasswordFunc = func(_ context.Context, accessToken, _ string) error {
			token = accessToken
			return nil
		}

		require.NoError(t, h.mgr.UpdatePassword(ctx, "N3wPassword"))
		assert.Equal(t, s.BearerToken(), token)
		assert.Equal(t, auth.StateAuthenticated, h.mgr.State())
	})

	t.Run("rejected credential tears the session down", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		signInAs(t, h, newSession(t, "a@b.com", nil))
		h.provider.UpdatePasswordFunc = func(context.Context, string, string) error {
			return identity.ErrInvalidCredentials
		}

		err := h.mgr.UpdatePassword(ctx, "N3wPassword")
		require.ErrorIs(t, err, auth.ErrInvalidCredential)
		assert.Equal(t, auth.StateAnonymous, h.mgr.State())
		assert.Nil(t, h.mgr.CurrentUser())
	})
}

func TestManager_Usage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())

		_, err := h.mgr.MonthlyUsage(ctx, "analysis")
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		h.mgr.LogAction(ctx, "analysis", "site-1", nil)
		assert.Empty(t, h.log.Entries())
	})

	t.Run("logs and counts actions", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		s := newSession(t, "a@b.com", nil)
		signInAs(t, h, s)

		h.mgr.LogAction(ctx, "analysis", "site-1", map[string]any{"url": "https://example.com"})
		h.mgr.LogAction(ctx, "analysis", "site-2", nil)
		h.mgr.LogAction(ctx, "export", "site-1", nil)
		h.mgr.LogAction(ctx, "", "ignored", nil)

		n, err := h.mgr.MonthlyUsage(ctx, "analysis")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		entries := h.log.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, s.IdentityID, entries[0].IdentityID)
		assert.Equal(t, "site-1", entries[0].ResourceID)
	})

	t.Run("analysis quota follows the plan", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig())
		signInAs(t, h, newSession(t, "a@b.com", nil))

		free := limits.LimitsFor(limits.PlanFree)
		for range free.AnalysesPerMonth {
			require.NoError(t, h.mgr.CanAnalyze(ctx))
			h.mgr.LogAction(ctx, "analysis", "site", nil)
		}
		assert.ErrorIs(t, h.mgr.CanAnalyze(ctx), limits.ErrLimitExceeded)

		_, err := h.mgr.UpdateProfile(ctx, profile.Fields{PlanType: profile.String(limits.PlanPremium)})
		require.NoError(t, err)
		assert.NoError(t, h.mgr.CanAnalyze(ctx))
	})
}

func TestManager_Plans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, testConfig())
	assert.Equal(t, limits.PlanFree, h.mgr.PlanLimits().PlanType)
	assert.True(t, h.mgr.HasFeature(string(limits.FeatureBasicScan)))
	assert.False(t, h.mgr.HasFeature(string(limits.FeaturePDFExport)))

	signInAs(t, h, newSession(t, "a@b.com", nil))
	_, err := h.mgr.UpdateProfile(ctx, profile.Fields{PlanType: profile.String(limits.PlanBasic)})
	require.NoError(t, err)

	assert.Equal(t, limits.PlanBasic, h.mgr.PlanLimits().PlanType)
	assert.True(t, h.mgr.HasFeature(string(limits.FeaturePDFExport)))
	assert.False(t, h.mgr.HasFeature(string(limits.FeatureAPIAccess)))
	assert.False(t, h.mgr.HasFeature("no_such_feature"))
}
