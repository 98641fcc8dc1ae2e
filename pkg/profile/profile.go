package profile

import (
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPlanType is assigned to profiles created without an explicit plan.
const DefaultPlanType = "free"

var (
	// ErrNotFound is the "no rows" condition; it triggers creation
	ErrNotFound = errors.New("profile.not_found")

	// ErrAlreadyExists indicates a primary key conflict on insert
	ErrAlreadyExists = errors.New("profile.already_exists")

	// ErrWriteFailed wraps failed inserts and updates
	ErrWriteFailed = errors.New("profile.write_failed")

	// ErrFetchFailed wraps read failures other than ErrNotFound
	ErrFetchFailed = errors.New("profile.fetch_failed")

	// ErrInvalidIdentity indicates an identity without an id
	ErrInvalidIdentity = errors.New("profile.invalid_identity")
)

// Profile is application-owned data about a user, keyed by identity id.
type Profile struct {
	ID        uuid.UUID      `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Company   string         `json:"company"`
	PlanType  string         `json:"plan_type"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of p; Settings is not shared. Nil stays nil.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Settings = maps.Clone(p.Settings)
	return &cp
}

// Fields is a partial profile. Nil pointers are left untouched on update.
type Fields struct {
	FirstName *string        `json:"first_name,omitempty"`
	LastName  *string        `json:"last_name,omitempty"`
	Company   *string        `json:"company,omitempty"`
	PlanType  *string        `json:"plan_type,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
}

// IsEmpty reports whether f changes nothing.
func (f Fields) IsEmpty() bool {
	return f.FirstName == nil && f.LastName == nil && f.Company == nil && f.PlanType == nil && len(f.Settings) == 0
}

// Merge returns f with non-nil values from other taking precedence.
func (f Fields) Merge(other Fields) Fields {
	out := f
	if other.FirstName != nil {
		out.FirstName = other.FirstName
	}
	if other.LastName != nil {
		out.LastName = other.LastName
	}
	if other.Company != nil {
		out.Company = other.Company
	}
	if other.PlanType != nil {
		out.PlanType = other.PlanType
	}
	if len(other.Settings) > 0 {
		merged := make(map[string]any, len(f.Settings)+len(other.Settings))
		for k, v := range f.Settings {
			merged[k] = v
		}
		for k, v := range other.Settings {
			merged[k] = v
		}
		out.Settings = merged
	}
	return out
}

// Apply copies the set fields onto p.
func (f Fields) Apply(p *Profile) {
	if f.FirstName != nil {
		p.FirstName = *f.FirstName
	}
	if f.LastName != nil {
		p.LastName = *f.LastName
	}
	if f.Company != nil {
		p.Company = *f.Company
	}
	if f.PlanType != nil {
		p.PlanType = *f.PlanType
	}
	if len(f.Settings) > 0 {
		if p.Settings == nil {
			p.Settings = make(map[string]any, len(f.Settings))
		}
		for k, v := range f.Settings {
			p.Settings[k] = v
		}
	}
}

// Normalize trims names and title-cases first and last name.
func (f Fields) Normalize() Fields {
	title := cases.Title(language.Und, cases.NoLower)
	out := f
	if f.FirstName != nil {
		out.FirstName = String(title.String(strings.TrimSpace(*f.FirstName)))
	}
	if f.LastName != nil {
		out.LastName = String(title.String(strings.TrimSpace(*f.LastName)))
	}
	if f.Company != nil {
		out.Company = String(strings.TrimSpace(*f.Company))
	}
	if f.PlanType != nil {
		out.PlanType = String(strings.ToLower(strings.TrimSpace(*f.PlanType)))
	}
	return out
}

// String returns a pointer to s. Handy for building Fields.
func String(s string) *string {
	return &s
}

// Identity is what the reconciler knows about an authenticated account.
type Identity struct {
	ID       uuid.UUID
	Email    string
	Metadata map[string]any // user metadata captured by the provider at sign-up
}

// FieldsFromMetadata extracts profile fields from provider user metadata.
// Both snake_case and camelCase keys are accepted.
func FieldsFromMetadata(md map[string]any) Fields {
	var f Fields
	pick := func(keys ...string) *string {
		for _, k := range keys {
			if v, ok := md[k].(string); ok && strings.TrimSpace(v) != "" {
				return String(v)
			}
		}
		return nil
	}
	f.FirstName = pick("first_name", "firstName")
	f.LastName = pick("last_name", "lastName")
	f.Company = pick("company")
	return f
}

// MetadataFromFields is the inverse of FieldsFromMetadata, used to send
// sign-up fields to the provider.
func MetadataFromFields(f Fields) map[string]any {
	md := make(map[string]any, 3)
	if f.FirstName != nil {
		md["first_name"] = *f.FirstName
	}
	if f.LastName != nil {
		md["last_name"] = *f.LastName
	}
	if f.Company != nil {
		md["company"] = *f.Company
	}
	return md
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
