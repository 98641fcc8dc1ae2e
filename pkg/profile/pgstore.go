package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/scanauth/pkg/pg"
)

// PGStore is a Store backed by the profiles table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a PGStore using pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const profileColumns = `id, first_name, last_name, company, plan_type, settings, created_at, updated_at`

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return p, err
}

// Insert relies on ON CONFLICT DO NOTHING so that concurrent creators never
// see a unique violation; zero affected rows means the profile existed.
func (s *PGStore) Insert(ctx context.Context, p *Profile) error {
	settings, err := marshalSettings(p.Settings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, first_name, last_name, company, plan_type, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.FirstName, p.LastName, p.Company, p.PlanType, settings,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(ErrAlreadyExists, err)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, id uuid.UUID, fields Fields) (*Profile, error) {
	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.FirstName != nil {
		add("first_name", *fields.FirstName)
	}
	if fields.LastName != nil {
		add("last_name", *fields.LastName)
	}
	if fields.Company != nil {
		add("company", *fields.Company)
	}
	if fields.PlanType != nil {
		add("plan_type", *fields.PlanType)
	}
	if len(fields.Settings) > 0 {
		settings, err := marshalSettings(fields.Settings)
		if err != nil {
			return nil, err
		}
		args = append(args, settings)
		sets = append(sets, fmt.Sprintf("settings = settings || $%d::jsonb", len(args)))
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	row := s.pool.QueryRow(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+profileColumns,
		args...,
	)
	p, err := scanProfile(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p        Profile
		settings []byte
	)
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Company, &p.PlanType, &settings, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return nil, fmt.Errorf("decode profile settings: %w", err)
		}
	}
	return &p, nil
}

func marshalSettings(settings map[string]any) ([]byte, error) {
	if settings == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(settings)
}
