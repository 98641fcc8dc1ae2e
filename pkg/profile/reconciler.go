package profile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/scanauth/pkg/logger"
)

// Reconciler materializes and updates profiles for authenticated identities.
type Reconciler struct {
	store   Store
	pending PendingStore
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithPendingStore replaces the default in-memory pending slot.
func WithPendingStore(p PendingStore) ReconcilerOption {
	return func(r *Reconciler) {
		if p != nil {
			r.pending = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for pending update timestamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler returns a Reconciler backed by store.
func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:   store,
		pending: NewMemoryPendingStore(),
		logger:  logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure returns the profile for id, creating it when missing and applying
// a matching pending update afterwards.
func (r *Reconciler) Ensure(ctx context.Context, id Identity) (*Profile, error) {
	if id.ID == uuid.Nil {
		return nil, ErrInvalidIdentity
	}

	v, err, _ := r.group.Do(id.ID.String(), func() (any, error) {
		return r.ensure(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile).Clone(), nil
}

func (r *Reconciler) ensure(ctx context.Context, id Identity) (*Profile, error) {
	p, err := r.store.Get(ctx, id.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		p, err = r.create(ctx, id, FieldsFromMetadata(id.Metadata))
		if err != nil {
			return nil, err
		}
		r.logger.InfoContext(ctx, "profile created",
			logger.Component("profile"),
			logger.IdentityID(id.ID),
		)
	case err != nil:
		return nil, errors.Join(ErrFetchFailed, err)
	}

	return r.applyPending(ctx, id, p), nil
}

// Create inserts a profile built from the identity metadata overlaid with
// fields. If the profile already exists, fields are applied as an update.
func (r *Reconciler) Create(ctx context.Context, id Identity, fields Fields) (*Profile, error) {
	if id.ID == uuid.Nil {
		return nil, ErrInvalidIdentity
	}

	v, err, _ := r.group.Do("create:"+id.ID.String(), func() (any, error) {
		p, err := r.create(ctx, id, FieldsFromMetadata(id.Metadata).Merge(fields))
		if err != nil {
			return nil, err
		}
		return r.applyPending(ctx, id, p), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile).Clone(), nil
}

// Update applies fields to the stored profile.
func (r *Reconciler) Update(ctx context.Context, id uuid.UUID, fields Fields) (*Profile, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidIdentity
	}
	p, err := r.store.Update(ctx, id, fields.Normalize())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrWriteFailed, err)
	}
	return p, nil
}

// Defer parks fields for the identity known by email (and id when the
// provider already returned one). Any older pending update is replaced.
func (r *Reconciler) Defer(ctx context.Context, email string, id uuid.UUID, fields Fields) error {
	if fields.IsEmpty() {
		return nil
	}
	return r.pending.Put(ctx, PendingUpdate{
		Email:      normalizeEmail(email),
		IdentityID: id,
		Fields:     fields.Normalize(),
		CreatedAt:  r.now().UTC(),
	})
}

// Pending returns the parked update, if any.
func (r *Reconciler) Pending(ctx context.Context) (*PendingUpdate, error) {
	return r.pending.Get(ctx)
}

func (r *Reconciler) create(ctx context.Context, id Identity, fields Fields) (*Profile, error) {
	fields = fields.Normalize()
	p := &Profile{ID: id.ID, PlanType: DefaultPlanType}
	fields.Apply(p)

	err := r.store.Insert(ctx, p)
	if errors.Is(err, ErrAlreadyExists) {
		// Another writer created it first: keep its row, layer fields on top.
		if fields.IsEmpty() {
			existing, err := r.store.Get(ctx, id.ID)
			if err != nil {
				return nil, errors.Join(ErrFetchFailed, err)
			}
			return existing, nil
		}
		updated, err := r.store.Update(ctx, id.ID, fields)
		if err != nil {
			return nil, errors.Join(ErrWriteFailed, err)
		}
		return updated, nil
	}
	if err != nil {
		return nil, errors.Join(ErrWriteFailed, err)
	}

	stored, err := r.store.Get(ctx, id.ID)
	if err != nil {
		// The insert succeeded; fall back to what was written.
		return p, nil
	}
	return stored, nil
}

func (r *Reconciler) applyPending(ctx context.Context, id Identity, p *Profile) *Profile {
	pending, err := r.pending.Get(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to read pending profile update",
			logger.Component("profile"),
			logger.IdentityID(id.ID),
			logger.Error(err),
		)
		return p
	}
	if pending == nil || !pending.Matches(id) {
		return p
	}

	updated, err := r.store.Update(ctx, id.ID, pending.Fields)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to apply pending profile update, will retry",
			logger.Component("profile"),
			logger.IdentityID(id.ID),
			logger.Error(err),
		)
		return p
	}

	if err := r.pending.Delete(ctx); err != nil {
		r.logger.WarnContext(ctx, "failed to delete applied pending profile update",
			logger.Component("profile"),
			logger.IdentityID(id.ID),
			logger.Error(err),
		)
	}
	r.logger.InfoContext(ctx, "pending profile update applied",
		logger.Component("profile"),
		logger.IdentityID(id.ID),
	)
	return updated
}
