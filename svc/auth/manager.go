package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/metrics"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/session"
	"github.com/dmitrymomot/scanauth/pkg/sessionmeta"
	"github.com/dmitrymomot/scanauth/pkg/statemachine"
	"github.com/dmitrymomot/scanauth/pkg/usage"
)

// Validator classifies a credential against the resource API.
type Validator interface {
	Validate(ctx context.Context, s *session.Session) backend.Result
}

// ProfileReconciler materializes the local profile of an identity.
type ProfileReconciler interface {
	Ensure(ctx context.Context, id profile.Identity) (*profile.Profile, error)
	Create(ctx context.Context, id profile.Identity, fields profile.Fields) (*profile.Profile, error)
	Update(ctx context.Context, id uuid.UUID, fields profile.Fields) (*profile.Profile, error)
	Defer(ctx context.Context, email string, id uuid.UUID, fields profile.Fields) error
}

// UsageCounter reads and appends the external usage log.
type UsageCounter interface {
	MonthlyUsage(ctx context.Context, identityID uuid.UUID, action string) (int64, error)
	Record(ctx context.Context, identityID uuid.UUID, action, resourceID string, metadata map[string]any) error
}

// PlanResolver maps a plan type to its limits. *limits.Service implements it.
type PlanResolver interface {
	LimitsFor(planType string) limits.PlanLimits
	HasFeature(planType string, f limits.Feature) bool
}

type defaultPlans struct{}

func (defaultPlans) LimitsFor(planType string) limits.PlanLimits { return limits.LimitsFor(planType) }
func (defaultPlans) HasFeature(planType string, f limits.Feature) bool {
	return limits.HasFeature(planType, f)
}

// Manager is the single owner of the session and the current profile.
type Manager struct {
	cfg        Config
	provider   identity.Provider
	validator  Validator
	reconciler ProfileReconciler
	cache      sessionmeta.Cache
	usage      UsageCounter
	plans      PlanResolver
	metrics    metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time

	holder  *session.Holder
	machine *statemachine.Machine[State, Event]
	focus   *rate.Limiter

	current  atomic.Pointer[profile.Profile]
	loading  atomic.Bool
	verified atomic.Bool
	started  atomic.Bool

	// Owned by the loop goroutine.
	revoked          string
	cancelRevalidate context.CancelFunc

	queue       chan command
	closing     chan struct{}
	done        chan struct{}
	baseCtx     context.Context
	cancelBase  context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	bg          sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetadataCache sets the breadcrumb cache. Defaults to an in-memory cache.
func WithMetadataCache(c sessionmeta.Cache) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithUsage sets the usage counter. Defaults to an in-memory log.
func WithUsage(u UsageCounter) Option {
	return func(m *Manager) {
		if u != nil {
			m.usage = u
		}
	}
}

// WithPlans sets the plan resolver. Defaults to the built-in plan tiers.
func WithPlans(p PlanResolver) Option {
	return func(m *Manager) {
		if p != nil {
			m.plans = p
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager and starts its command loop and the provider
// event subscription. Call Start to recover a persisted session and Close
// to release the goroutines.
func NewManager(cfg Config, provider identity.Provider, validator Validator, reconciler ProfileReconciler, opts ...Option) (*Manager, error) {
	if provider == nil || validator == nil || reconciler == nil {
		return nil, ErrMissingDependency
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		provider:   provider,
		validator:  validator,
		reconciler: reconciler,
		cache:      sessionmeta.NewMemoryCache(),
		usage:      usage.NewCounter(usage.NewMemoryLog()),
		plans:      defaultPlans{},
		metrics:    metrics.Nop{},
		logger:     logger.Nop(),
		now:        time.Now,
		queue:      make(chan command, 64),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.holder = session.NewHolder(session.WithRecorder(m.cache), session.WithLogger(m.logger))
	m.machine = m.newMachine()
	m.focus = rate.NewLimiter(rate.Every(cfg.FocusInterval), 1)
	m.baseCtx, m.cancelBase = context.WithCancel(context.Background())

	events, unsubscribe := provider.Subscribe()
	m.unsubscribe = unsubscribe

	go m.loop()
	m.bg.Add(1)
	go m.forward(events)

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// IsInitializing reports whether startup recovery is in flight.
func (m *Manager) IsInitializing() bool {
	return m.State() == StateInitializing
}

// IsLoading reports whether a startup, sign-in or sign-up is in flight.
func (m *Manager) IsLoading() bool {
	return m.loading.Load()
}

// Verified reports whether the current session was confirmed by the
// resource API or issued by the provider during this run.
func (m *Manager) Verified() bool {
	return m.verified.Load()
}

// Session returns a copy of the current session or nil.
func (m *Manager) Session() *session.Session {
	return m.holder.Current()
}

// Credential returns the current bearer token. It can be passed to API
// clients as their credential source.
func (m *Manager) Credential(ctx context.Context) (string, error) {
	return m.holder.Credential(ctx)
}

// CurrentUser returns the authenticated identity or nil.
func (m *Manager) CurrentUser() *identity.User {
	s := m.holder.Current()
	if s == nil {
		return nil
	}
	return &identity.User{ID: s.IdentityID, Email: s.Email, Metadata: s.Metadata}
}

// CurrentProfile returns a copy of the current profile or nil.
func (m *Manager) CurrentProfile() *profile.Profile {
	return m.current.Load().Clone()
}

// Close stops the command loop, the event subscription and any scheduled
// re-validation. Operations called afterwards return ErrClosed.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.cancelBase()
		<-m.done
		m.unsubscribe()
		m.bg.Wait()
	})
	return nil
}

type command struct {
	name   string
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.closing:
			m.stopRevalidation()
			return
		case cmd := <-m.queue:
			m.logger.DebugContext(cmd.ctx, "running command", logger.Component("auth"), logger.Action(cmd.name))
			cmd.result <- cmd.run(cmd.ctx)
		}
	}
}

// exec queues fn and waits for it to finish. Commands observe ctx
// themselves, so once queued the caller always gets the command's own result.
func (m *Manager) exec(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cmd := command{name: name, ctx: ctx, run: fn, result: make(chan error, 1)}

	select {
	case <-m.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case m.queue <- cmd:
	}

	select {
	case err := <-cmd.result:
		return err
	case <-m.done:
		select {
		case err := <-cmd.result:
			return err
		default:
			return ErrClosed
		}
	}
}

// forward turns provider events into queued commands, preserving order.
func (m *Manager) forward(events <-chan identity.Event) {
	defer m.bg.Done()
	for {
		select {
		case <-m.closing:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			err := m.exec(m.baseCtx, "event:"+string(e.Type), func(ctx context.Context) error {
				m.handleEvent(ctx, e)
				return nil
			})
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}
