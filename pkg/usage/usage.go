// Package usage counts per-identity actions inside the current calendar month.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/scanauth/pkg/logger"
)

var (
	ErrInvalidAction   = errors.New("usage.invalid_action")
	ErrInvalidIdentity = errors.New("usage.invalid_identity")
	ErrCountFailed     = errors.New("usage.count_failed")
	ErrAppendFailed    = errors.New("usage.append_failed")
	ErrInvalidTimezone = errors.New("usage.invalid_timezone")
)

// Entry is one logged action.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	IdentityID uuid.UUID      `json:"user_id"`
	Action     string         `json:"action"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Log is the external usage log.
type Log interface {
	Append(ctx context.Context, e Entry) error
	// Count returns the number of entries for identity and action with
	// CreatedAt >= since.
	Count(ctx context.Context, identityID uuid.UUID, action string, since time.Time) (int64, error)
}

// Config selects the timezone that defines month boundaries.
type Config struct {
	Timezone string `env:"USAGE_TIMEZONE" envDefault:"UTC"`
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Join(ErrInvalidTimezone, err)
	}
	return loc, nil
}

// MonthStart returns midnight on the 1st of now's month in loc.
// A nil loc means UTC.
func MonthStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// Counter reads and writes the usage log on behalf of an identity.
type Counter struct {
	log    Log
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithLocation sets the timezone of month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(c *Counter) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCounter returns a Counter over log.
func NewCounter(log Log, opts ...Option) *Counter {
	c := &Counter{
		log:    log,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MonthlyUsage counts action entries for identityID since the start of the
// current month.
func (c *Counter) MonthlyUsage(ctx context.Context, identityID uuid.UUID, action string) (int64, error) {
	if identityID == uuid.Nil {
		return 0, ErrInvalidIdentity
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return 0, ErrInvalidAction
	}

	since := MonthStart(c.now(), c.loc)
	n, err := c.log.Count(ctx, identityID, action, since)
	if err != nil {
		return 0, errors.Join(ErrCountFailed, err)
	}
	return n, nil
}

// Record appends an entry for identityID.
func (c *Counter) Record(ctx context.Context, identityID uuid.UUID, action, resourceID string, metadata map[string]any) error {
	if identityID == uuid.Nil {
		return ErrInvalidIdentity
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	err := c.log.Append(ctx, Entry{
		ID:         uuid.New(),
		IdentityID: identityID,
		Action:     action,
		ResourceID: resourceID,
		Metadata:   metadata,
		CreatedAt:  c.now().UTC(),
	})
	if err != nil {
		return errors.Join(ErrAppendFailed, err)
	}

	c.logger.DebugContext(ctx, "usage recorded",
		logger.Component("usage"),
		logger.IdentityID(identityID),
		logger.Action(action),
	)
	return nil
}
