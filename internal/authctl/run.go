package authctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/svc/auth"
)

// verifyWait bounds how long verify waits for the provider's sign-in event.
const verifyWait = 5 * time.Second

// Run executes cfg.Command against the stack configured in the environment.
func Run(ctx context.Context, cfg Config, stdout, stderr io.Writer) (err error) {
	ctx = logger.WithOperationID(ctx, uuid.NewString())

	s, err := newStack(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer func() {
		// Close waits for a pending remote sign-out race to be logged.
		err = errors.Join(err, s.Close())
		if cfg.MetricsFile != "" {
			err = errors.Join(err, prometheus.WriteToTextfile(cfg.MetricsFile, s.registry))
		}
	}()

	return execute(ctx, cfg, s, stdout)
}

func execute(ctx context.Context, cfg Config, s *stack, out io.Writer) error {
	err := s.mgr.Start(ctx)
	switch {
	case err == nil, errors.Is(err, auth.ErrAlreadyStarted):
	case errors.Is(err, auth.ErrInvalidCredential):
		fmt.Fprintln(out, "stored session was rejected, signed out")
	default:
		fmt.Fprintf(out, "warning: session recovery: %v\n", err)
	}

	switch cfg.Command {
	case CmdStatus:
		if err := printStatus(out, s.mgr); err != nil {
			return err
		}
		return printHealth(ctx, out, s.checks)

	case CmdSignIn:
		if err := s.mgr.SignIn(ctx, cfg.Email, cfg.Password); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		return printStatus(out, s.mgr)

	case CmdSignUp:
		res, err := s.mgr.SignUp(ctx, auth.SignUpRequest{
			Email:    cfg.Email,
			Password: cfg.Password,
			Fields:   signUpFields(cfg),
		})
		if err != nil {
			return fmt.Errorf("sign up: %w", err)
		}
		if res.VerificationRequired {
			fmt.Fprintf(out, "check %s for a verification code, then run: authctl verify -email %s -otp <code>\n", cfg.Email, cfg.Email)
			return nil
		}
		return printStatus(out, s.mgr)

	case CmdVerify:
		if s.verifier == nil {
			return errors.New("verify: provider does not support email codes")
		}
		if err := s.verifier.VerifyOTP(ctx, cfg.OTPType, cfg.Email, cfg.OTP); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if err := waitForState(ctx, s.mgr, auth.StateAuthenticated, verifyWait); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		return printStatus(out, s.mgr)

	case CmdSignOut:
		s.mgr.SignOut(ctx)
		fmt.Fprintln(out, "signed out")
		return nil

	case CmdResetPassword:
		if err := s.mgr.ResetPassword(ctx, cfg.Email, cfg.RedirectTo); err != nil {
			return fmt.Errorf("reset password: %w", err)
		}
		fmt.Fprintf(out, "recovery email sent to %s\n", cfg.Email)
		return nil

	case CmdUsage:
		used, err := s.mgr.MonthlyUsage(ctx, cfg.Action)
		if err != nil {
			return fmt.Errorf("usage: %w", err)
		}
		pl := s.mgr.PlanLimits()
		fmt.Fprintf(out, "%s this month: %d of %s (plan %s)\n", cfg.Action, used, formatLimit(pl.AnalysesPerMonth), pl.PlanType)
		return nil

	case CmdLog:
		if s.mgr.CurrentUser() == nil {
			return fmt.Errorf("log: %w", auth.ErrNotAuthenticated)
		}
		s.mgr.LogAction(ctx, cfg.Action, cfg.ResourceID, nil)
		fmt.Fprintf(out, "logged %s\n", cfg.Action)
		return nil

	case CmdLimits:
		return printLimits(out, s, cfg.Plan)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cfg.Command)
	}
}

func signUpFields(cfg Config) profile.Fields {
	var f profile.Fields
	if cfg.FirstName != "" {
		f.FirstName = profile.String(cfg.FirstName)
	}
	if cfg.LastName != "" {
		f.LastName = profile.String(cfg.LastName)
	}
	if cfg.Company != "" {
		f.Company = profile.String(cfg.Company)
	}
	return f
}

func waitForState(ctx context.Context, mgr *auth.Manager, want auth.State, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for mgr.State() != want {
		select {
		case <-ctx.Done():
			return fmt.Errorf("still %s after %s", mgr.State(), limit)
		case <-ticker.C:
		}
	}
	return nil
}

func printStatus(out io.Writer, mgr *auth.Manager) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "state\t%s\n", mgr.State())

	if u := mgr.CurrentUser(); u != nil {
		fmt.Fprintf(w, "user\t%s (%s)\n", u.Email, u.ID)
		fmt.Fprintf(w, "verified\t%t\n", mgr.Verified())
		if s := mgr.Session(); s != nil && !s.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "expires\t%s\n", s.ExpiresAt.Format(time.RFC3339))
		}
	}
	if p := mgr.CurrentProfile(); p != nil {
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "name\t%s\n", name)
		if p.Company != "" {
			fmt.Fprintf(w, "company\t%s\n", p.Company)
		}
		fmt.Fprintf(w, "plan\t%s\n", p.PlanType)
	} else if mgr.CurrentUser() != nil {
		fmt.Fprintf(w, "profile\tunavailable\n")
	}
	return w.Flush()
}

// printHealth reports each configured store; a failing store is reported,
// not returned.
func printHealth(ctx context.Context, out io.Writer, checks []healthcheck) error {
	if len(checks) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, hc := range checks {
		status := "ok"
		if err := hc.check(ctx); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "store %s\t%s\n", hc.name, status)
	}
	return w.Flush()
}

// printLimits describes the current plan, or planID together with what
// changes when moving to it from the current plan.
func printLimits(out io.Writer, s *stack, planID string) error {
	pl := s.mgr.PlanLimits()
	var change *limits.PlanComparison
	if planID != "" {
		target, err := s.plans.Plan(planID)
		if err != nil {
			return fmt.Errorf("limits: %w", err)
		}
		current, err := s.plans.Plan(pl.PlanType)
		if err != nil {
			return fmt.Errorf("limits: %w", err)
		}
		if current.ID != target.ID {
			change = limits.ComparePlans(current, target)
		}
		pl = target.PlanLimits()
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "plan\t%s\n", pl.PlanType)
	fmt.Fprintf(w, "analyses per month\t%s\n", formatLimit(pl.AnalysesPerMonth))
	fmt.Fprintf(w, "projects\t%s\n", formatLimit(pl.ProjectsMax))
	fmt.Fprintf(w, "features\t%s\n", joinFeatures(pl.Features))

	if change != nil {
		kind := "downgrade"
		if change.IsUpgrade() {
			kind = "upgrade"
		}
		fmt.Fprintf(w, "change\t%s from %s\n", kind, s.mgr.PlanLimits().PlanType)
		if len(change.NewFeatures) > 0 {
			fmt.Fprintf(w, "gains\t%s\n", joinFeatures(change.NewFeatures))
		}
		if len(change.LostFeatures) > 0 {
			fmt.Fprintf(w, "loses\t%s\n", joinFeatures(change.LostFeatures))
		}
		for _, res := range []limits.Resource{limits.ResourceAnalyses, limits.ResourceProjects} {
			rc, ok := change.IncreasedLimits[res]
			if !ok {
				rc, ok = change.DecreasedLimits[res]
			}
			if ok {
				fmt.Fprintf(w, "%s\t%s -> %s\n", res, formatLimit(rc.From), formatLimit(rc.To))
			}
		}
	}
	return w.Flush()
}

func joinFeatures(fs []limits.Feature) string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, string(f))
	}
	return strings.Join(out, ", ")
}

func formatLimit(n int64) string {
	if n == limits.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
