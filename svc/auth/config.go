package auth

import (
	"errors"
	"fmt"
	"time"
)

// Policy decides what startup does when the credential cannot be validated
// because the resource API is unreachable.
type Policy string

const (
	// PolicyFailOpen keeps the unverified session and re-validates in the background.
	PolicyFailOpen Policy = "fail_open"
	// PolicyFailClosed lands in anonymous but keeps the breadcrumb so the next start retries.
	PolicyFailClosed Policy = "fail_closed"
)

// Config holds Manager settings.
type Config struct {
	StartupTimeout        time.Duration `env:"AUTH_STARTUP_TIMEOUT" envDefault:"30s"`
	SignOutTimeout        time.Duration `env:"AUTH_SIGNOUT_TIMEOUT" envDefault:"3s"`
	UnreachablePolicy     Policy        `env:"AUTH_UNREACHABLE_POLICY" envDefault:"fail_open"`
	RevalidateInterval    time.Duration `env:"AUTH_REVALIDATE_INTERVAL" envDefault:"5s"`
	RevalidateMaxInterval time.Duration `env:"AUTH_REVALIDATE_MAX_INTERVAL" envDefault:"5m"`
	RevalidateMaxAttempts uint64        `env:"AUTH_REVALIDATE_MAX_ATTEMPTS" envDefault:"0"` // 0 retries until the session changes
	FocusInterval         time.Duration `env:"AUTH_FOCUS_INTERVAL" envDefault:"30s"`
	AnalysisAction        string        `env:"AUTH_ANALYSIS_ACTION" envDefault:"analysis"`
	PasswordResetRedirect string        `env:"AUTH_PASSWORD_RESET_REDIRECT"`
}

// DefaultConfig returns the values used when no environment is present.
func DefaultConfig() Config {
	return Config{
		StartupTimeout:        30 * time.Second,
		SignOutTimeout:        3 * time.Second,
		UnreachablePolicy:     PolicyFailOpen,
		RevalidateInterval:    5 * time.Second,
		RevalidateMaxInterval: 5 * time.Minute,
		FocusInterval:         30 * time.Second,
		AnalysisAction:        "analysis",
	}
}

// withDefaults fills zero durations from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StartupTimeout == 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.SignOutTimeout == 0 {
		c.SignOutTimeout = d.SignOutTimeout
	}
	if c.UnreachablePolicy == "" {
		c.UnreachablePolicy = d.UnreachablePolicy
	}
	if c.RevalidateInterval == 0 {
		c.RevalidateInterval = d.RevalidateInterval
	}
	if c.RevalidateMaxInterval == 0 {
		c.RevalidateMaxInterval = d.RevalidateMaxInterval
	}
	if c.FocusInterval == 0 {
		c.FocusInterval = d.FocusInterval
	}
	if c.AnalysisAction == "" {
		c.AnalysisAction = d.AnalysisAction
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("startup timeout must be positive: %s", c.StartupTimeout))
	}
	if c.SignOutTimeout < 0 {
		errs = append(errs, fmt.Errorf("sign-out timeout must be positive: %s", c.SignOutTimeout))
	}
	if c.RevalidateMaxInterval < c.RevalidateInterval {
		errs = append(errs, fmt.Errorf("revalidate max interval %s is below interval %s", c.RevalidateMaxInterval, c.RevalidateInterval))
	}
	switch c.UnreachablePolicy {
	case PolicyFailOpen, PolicyFailClosed:
	default:
		errs = append(errs, fmt.Errorf("unknown unreachable policy %q", c.UnreachablePolicy))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}
