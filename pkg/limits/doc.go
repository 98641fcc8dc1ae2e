// Package limits maps a plan tier to its monthly analysis allowance,
// project cap and feature set.
//
// The three built-in tiers are free, basic and premium. LimitsFor and
// HasFeature answer from those defaults; a Service can load its plans
// from memory or a YAML file instead:
//
//	svc, err := limits.NewService(ctx, limits.NewYAMLFileSource("plans.yaml"))
//	if err != nil {
//	    return err
//	}
//	if err := svc.CanAnalyze(profile.PlanType, used); errors.Is(err, limits.ErrLimitExceeded) {
//	    // ask the user to upgrade
//	}
//
// Unknown or empty plan types resolve to the fallback plan (free by default).
// Unlimited (-1) disables a cap.
package limits
