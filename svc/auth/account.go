package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/validator"
)

// ResetPassword asks the provider to mail a recovery link. An empty
// redirectTo falls back to Config.PasswordResetRedirect.
func (m *Manager) ResetPassword(ctx context.Context, email, redirectTo string) error {
	if redirectTo == "" {
		redirectTo = m.cfg.PasswordResetRedirect
	}
	if err := m.provider.ResetPasswordForEmail(ctx, email, redirectTo); err != nil {
		return providerError(err)
	}
	return nil
}

// UpdatePassword changes the password of the signed-in identity. A rejected
// credential tears the session down.
func (m *Manager) UpdatePassword(ctx context.Context, password string) error {
	if err := validator.Apply(validator.Password("password", password, validator.DefaultPasswordPolicy())); err != nil {
		return err
	}
	return m.exec(ctx, "update_password", func(ctx context.Context) error {
		s := m.holder.Current()
		if s == nil || m.State() != StateAuthenticated {
			return ErrNotAuthenticated
		}

		err := m.provider.UpdatePassword(ctx, s.BearerToken(), password)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			m.teardown(ctx, "password_update_rejected", false)
		}
		return providerError(err)
	})
}

// CreateProfile creates the profile of the signed-in identity, or applies
// fields to it when it already exists.
func (m *Manager) CreateProfile(ctx context.Context, fields profile.Fields) (*profile.Profile, error) {
	var out *profile.Profile
	err := m.exec(ctx, "create_profile", func(ctx context.Context) error {
		s := m.holder.Current()
		if s == nil || m.State() != StateAuthenticated {
			return ErrNotAuthenticated
		}
		p, err := m.reconciler.Create(ctx, identityOf(s), fields)
		if err != nil {
			return err
		}
		m.current.Store(p)
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// UpdateProfile applies fields to the profile of the signed-in identity.
func (m *Manager) UpdateProfile(ctx context.Context, fields profile.Fields) (*profile.Profile, error) {
	var out *profile.Profile
	err := m.exec(ctx, "update_profile", func(ctx context.Context) error {
		s := m.holder.Current()
		if s == nil || m.State() != StateAuthenticated {
			return ErrNotAuthenticated
		}
		p, err := m.reconciler.Update(ctx, s.IdentityID, fields)
		if err != nil {
			return err
		}
		m.current.Store(p)
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// MonthlyUsage counts action for the signed-in identity since the start of
// the current month.
func (m *Manager) MonthlyUsage(ctx context.Context, action string) (int64, error) {
	s := m.holder.Current()
	if s == nil {
		return 0, ErrNotAuthenticated
	}
	return m.usage.MonthlyUsage(ctx, s.IdentityID, action)
}

// LogAction appends to the usage log. Failures are logged and absorbed.
func (m *Manager) LogAction(ctx context.Context, action, resourceID string, metadata map[string]any) {
	s := m.holder.Current()
	if s == nil {
		m.logger.DebugContext(ctx, "dropping usage entry without session",
			logger.Component("auth"),
			logger.Action(action),
		)
		return
	}
	if err := m.usage.Record(ctx, s.IdentityID, action, resourceID, metadata); err != nil {
		m.logger.WarnContext(ctx, "failed to log action",
			logger.Component("auth"),
			logger.IdentityID(s.IdentityID),
			logger.Action(action),
			logger.Error(err),
		)
	}
}

// PlanLimits returns the limits of the current profile's plan. Without a
// profile the free tier applies.
func (m *Manager) PlanLimits() limits.PlanLimits {
	return m.plans.LimitsFor(m.planType())
}

// HasFeature reports whether the current plan includes the named feature.
func (m *Manager) HasFeature(name string) bool {
	return m.plans.HasFeature(m.planType(), limits.Feature(name))
}

// CanAnalyze checks the monthly analysis quota of the signed-in identity.
// It returns limits.ErrLimitExceeded once the quota is used up.
func (m *Manager) CanAnalyze(ctx context.Context) error {
	used, err := m.MonthlyUsage(ctx, m.cfg.AnalysisAction)
	if err != nil {
		return err
	}
	pl := m.PlanLimits()
	if pl.AnalysesPerMonth != limits.Unlimited && used >= pl.AnalysesPerMonth {
		return fmt.Errorf("%w: %d of %d analyses used", limits.ErrLimitExceeded, used, pl.AnalysesPerMonth)
	}
	return nil
}

func (m *Manager) planType() string {
	if p := m.current.Load(); p != nil {
		return p.PlanType
	}
	return limits.PlanFree
}

// Focus is called when the application regains focus. It retries a missing
// profile for the signed-in identity. Calls are throttled to one per
// Config.FocusInterval; throttled calls return immediately.
func (m *Manager) Focus(ctx context.Context) error {
	if !m.focus.Allow() {
		return nil
	}
	return m.exec(ctx, "focus", func(ctx context.Context) error {
		s := m.holder.Current()
		if s == nil || m.State() != StateAuthenticated || m.current.Load() != nil {
			return nil
		}
		m.reconcile(ctx, s)
		return nil
	})
}
