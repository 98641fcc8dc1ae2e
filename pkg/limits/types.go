package limits

// Resource represents a countable resource type bounded by a plan.
type Resource string

// Predefined resource types.
const (
	ResourceAnalyses Resource = "analyses" // per calendar month
	ResourceProjects Resource = "projects" // tracked at any time
)

// Limit constants
const (
	// Unlimited represents a resource with no limit (-1)
	Unlimited int64 = -1
)

// Feature is a string type representing a plan-specific feature flag.
type Feature string

// Predefined feature flags for plans.
const (
	FeatureBasicScan       Feature = "basic_scan"
	FeatureFullReport      Feature = "full_report"
	FeaturePDFExport       Feature = "pdf_export"
	FeatureScanHistory     Feature = "scan_history"
	FeaturePriorityScan    Feature = "priority_scan"
	FeatureAPIAccess       Feature = "api_access"
	FeatureScheduledScans  Feature = "scheduled_scans"
	FeatureCompetitorWatch Feature = "competitor_watch"
)

// Plan tiers.
const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// UsageInfo contains the current usage and limit for a resource.
type UsageInfo struct {
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}

// Remaining returns how many units are left, or Unlimited.
func (u UsageInfo) Remaining() int64 {
	if u.Limit == Unlimited {
		return Unlimited
	}
	return max(u.Limit-u.Current, 0)
}
