package resource

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/scanauth/pkg/profile"
)

const profilesTable = "profiles"

// ProfileStore is a profile.Store over the resource API.
type ProfileStore struct {
	c *Client
}

var _ profile.Store = (*ProfileStore)(nil)

// Profiles returns the profiles table.
func (c *Client) Profiles() *ProfileStore {
	return &ProfileStore{c: c}
}

type profileRow struct {
	ID        uuid.UUID      `json:"id"`
	FirstName *string        `json:"first_name"`
	LastName  *string        `json:"last_name"`
	Company   *string        `json:"company"`
	PlanType  *string        `json:"plan_type"`
	Settings  map[string]any `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (r profileRow) profile() *profile.Profile {
	p := &profile.Profile{
		ID:        r.ID,
		Settings:  r.Settings,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	profile.Fields{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Company:   r.Company,
		PlanType:  r.PlanType,
	}.Apply(p)
	if p.PlanType == "" {
		p.PlanType = profile.DefaultPlanType
	}
	return p
}

// Get returns profile.ErrNotFound when the row does not exist.
func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error) {
	var rows []profileRow
	_, err := s.c.do(ctx, request{
		method: http.MethodGet,
		table:  profilesTable,
		query:  url.Values{"id": {eq(id.String())}, "select": {"*"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, profile.ErrNotFound
	}
	return rows[0].profile(), nil
}

// Insert returns profile.ErrAlreadyExists on a primary key conflict.
func (s *ProfileStore) Insert(ctx context.Context, p *profile.Profile) error {
	body := map[string]any{
		"id":         p.ID,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"company":    p.Company,
		"plan_type":  p.PlanType,
	}
	if len(p.Settings) > 0 {
		body["settings"] = p.Settings
	}

	_, err := s.c.do(ctx, request{
		method:  http.MethodPost,
		table:   profilesTable,
		body:    body,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
	if errors.Is(err, ErrConflict) {
		return errors.Join(profile.ErrAlreadyExists, err)
	}
	return err
}

// Update patches the row. Settings are merged with the stored ones, which
// costs one extra read.
func (s *ProfileStore) Update(ctx context.Context, id uuid.UUID, fields profile.Fields) (*profile.Profile, error) {
	body := map[string]any{"updated_at": time.Now().UTC()}
	if fields.FirstName != nil {
		body["first_name"] = *fields.FirstName
	}
	if fields.LastName != nil {
		body["last_name"] = *fields.LastName
	}
	if fields.Company != nil {
		body["company"] = *fields.Company
	}
	if fields.PlanType != nil {
		body["plan_type"] = *fields.PlanType
	}
	if len(fields.Settings) > 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		merged := maps.Clone(current.Settings)
		if merged == nil {
			merged = make(map[string]any, len(fields.Settings))
		}
		maps.Copy(merged, fields.Settings)
		body["settings"] = merged
	}

	var rows []profileRow
	_, err := s.c.do(ctx, request{
		method:  http.MethodPatch,
		table:   profilesTable,
		query:   url.Values{"id": {eq(id.String())}},
		body:    body,
		headers: map[string]string{"Prefer": "return=representation"},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, profile.ErrNotFound
	}
	return rows[0].profile(), nil
}
