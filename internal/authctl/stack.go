package authctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/config"
	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/metrics"
	"github.com/dmitrymomot/scanauth/pkg/pg"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/redis"
	"github.com/dmitrymomot/scanauth/pkg/resource"
	"github.com/dmitrymomot/scanauth/pkg/sessionmeta"
	"github.com/dmitrymomot/scanauth/pkg/usage"
	"github.com/dmitrymomot/scanauth/svc/auth"
)

// verifier is implemented by providers that can confirm email codes.
type verifier interface {
	VerifyOTP(ctx context.Context, otpType, email, token string) error
}

// healthcheck probes one configured store.
type healthcheck struct {
	name  string
	check func(context.Context) error
}

// stack is everything a command needs.
type stack struct {
	mgr      *auth.Manager
	plans    *limits.Service
	verifier verifier
	registry *prometheus.Registry
	logger   *slog.Logger
	checks   []healthcheck
	closers  []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newStack wires the production stack from the environment.
func newStack(ctx context.Context, cfg Config, stderr io.Writer) (_ *stack, err error) {
	var env Env
	if err := config.Load(&env, config.WithEnvFiles(cfg.EnvFile)); err != nil {
		return nil, err
	}
	if err := env.Stores.validate(); err != nil {
		return nil, err
	}

	log, err := newLogger(env.Log, stderr)
	if err != nil {
		return nil, err
	}

	s := &stack{registry: prometheus.NewRegistry(), logger: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var rc goredis.UniversalClient
	if env.Meta.Backend == "redis" || env.Stores.Pending == "redis" {
		var rcfg redis.Config
		if err := config.Load(&rcfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.checks = append(s.checks, healthcheck{"redis", redis.Healthcheck(client)})
		rc = client
	}

	cache, err := sessionmeta.New(env.Meta, rc, sessionmeta.WithLogger(log))
	if err != nil {
		return nil, err
	}

	if env.Identity.TokenFile == "" {
		env.Identity.TokenFile = env.Stores.TokenFile
	}
	provider, err := identity.NewFromConfig(env.Identity, identity.WithLogger(log))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, provider.Close)
	s.verifier = otpVerifier{provider}

	// The resource client reads the credential from the manager built below.
	var mgr *auth.Manager
	api, err := resource.NewFromConfig(env.Resource,
		resource.WithLogger(log),
		resource.WithCredential(func(ctx context.Context) (string, error) {
			if mgr == nil {
				return "", nil
			}
			return mgr.Credential(ctx)
		}),
	)
	if err != nil {
		return nil, err
	}

	var (
		store    profile.Store = api.Profiles()
		usageLog usage.Log     = api.UsageLogs()
	)
	if env.Stores.needsPostgres() {
		var pcfg pg.Config
		if err := config.Load(&pcfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pcfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.checks = append(s.checks, healthcheck{"postgres", pg.Healthcheck(pool)})
		if err := pg.Migrate(ctx, pool, pcfg, log); err != nil {
			return nil, err
		}
		if env.Stores.Profiles == "pg" {
			store = profile.NewPGStore(pool)
		}
		if env.Stores.Usage == "pg" {
			usageLog = usage.NewPGLog(pool)
		}
	}

	var pending profile.PendingStore = profile.NewMemoryPendingStore()
	if env.Stores.Pending == "redis" {
		pending = profile.NewRedisPendingStore(rc, env.Stores.PendingKey, env.Stores.PendingTTL)
	}

	loc, err := env.Usage.Location()
	if err != nil {
		return nil, err
	}

	s.plans, err = limits.NewFromConfig(ctx, env.Limits)
	if err != nil {
		return nil, err
	}

	mgr, err = auth.NewManager(env.Auth,
		provider,
		backend.NewFromConfig(env.Backend, backend.WithLogger(log)),
		profile.NewReconciler(store, profile.WithPendingStore(pending), profile.WithLogger(log)),
		auth.WithMetadataCache(cache),
		auth.WithUsage(usage.NewCounter(usageLog, usage.WithLocation(loc), usage.WithLogger(log))),
		auth.WithPlans(s.plans),
		auth.WithMetrics(metrics.NewCollector(s.registry)),
		auth.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	s.mgr = mgr
	s.closers = append(s.closers, mgr.Close)
	return s, nil
}

func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	if cfg.Format != logger.FormatJSON && cfg.Format != logger.FormatText {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.Format)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}
	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(cfg.Format),
		logger.WithOutput(w),
		logger.WithAttr(slog.String("service", "authctl")),
	), nil
}

// otpVerifier discards the session returned by VerifyOTP; the provider
// also emits it as a SIGNED_IN event, which the manager consumes.
type otpVerifier struct {
	client *identity.GoTrueClient
}

func (v otpVerifier) VerifyOTP(ctx context.Context, otpType, email, token string) error {
	_, err := v.client.VerifyOTP(ctx, otpType, email, token)
	return err
}
