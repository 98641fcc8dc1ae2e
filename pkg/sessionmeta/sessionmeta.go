package sessionmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/session"
)

// DefaultMaxAge bounds how old a breadcrumb may be and still count as recent.
const DefaultMaxAge = 30 * 24 * time.Hour

var (
	// ErrUnavailable indicates the backing storage could not be reached
	ErrUnavailable = errors.New("sessionmeta.unavailable")

	// ErrCorrupt indicates the stored breadcrumb could not be decoded
	ErrCorrupt = errors.New("sessionmeta.corrupt")

	// ErrUnknownBackend indicates an unsupported Config.Backend value
	ErrUnknownBackend = errors.New("sessionmeta.unknown_backend")

	// ErrNoRedisClient indicates the redis backend was selected without a client
	ErrNoRedisClient = errors.New("sessionmeta.no_redis_client")
)

// Metadata is the breadcrumb itself.
type Metadata struct {
	HadSession bool      `json:"had_session"`
	CapturedAt time.Time `json:"captured_at"`
}

// Cache is the non-authoritative record of a past session.
type Cache interface {
	Store(ctx context.Context, s *session.Session) error
	Clear(ctx context.Context) error
	HadRecentSession(ctx context.Context) bool
}

// Config holds breadcrumb settings shared by all implementations.
type Config struct {
	MaxAge   time.Duration `env:"SESSIONMETA_MAX_AGE" envDefault:"720h"`
	Backend  string        `env:"SESSIONMETA_BACKEND" envDefault:"file"` // memory, file or redis
	FilePath string        `env:"SESSIONMETA_FILE" envDefault:".scanauth/session-meta.json"`
	RedisKey string        `env:"SESSIONMETA_REDIS_KEY" envDefault:"scanauth:session-meta"`
}

// New builds the cache selected by cfg.Backend. The Redis client is only
// required for the redis backend.
func New(cfg Config, client redis.UniversalClient, opts ...Option) (Cache, error) {
	opts = append([]Option{WithMaxAge(cfg.MaxAge)}, opts...)
	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(opts...), nil
	case "", "file":
		return NewFileCache(cfg.FilePath, opts...), nil
	case "redis":
		if client == nil {
			return nil, ErrNoRedisClient
		}
		return NewRedisCache(client, cfg.RedisKey, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// recent reports whether m counts as a recent session at now.
func (m Metadata) recent(now time.Time, maxAge time.Duration) bool {
	if !m.HadSession || m.CapturedAt.IsZero() {
		return false
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return now.Sub(m.CapturedAt) <= maxAge
}

// Option configures any of the caches in this package.
type Option func(*options)

type options struct {
	maxAge        time.Duration
	lookupTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// WithLookupTimeout bounds how long HadRecentSession may wait on remote
// storage before failing closed.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lookupTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used when failing closed.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{maxAge: DefaultMaxAge, lookupTimeout: 2 * time.Second, now: time.Now, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) warn(ctx context.Context, msg string, err error) {
	o.logger.WarnContext(ctx, msg, logger.Component("sessionmeta"), logger.Error(err))
}
