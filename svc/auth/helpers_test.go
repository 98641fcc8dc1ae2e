package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/identity/identitytest"
	"github.com/dmitrymomot/scanauth/pkg/metrics"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/session"
	"github.com/dmitrymomot/scanauth/pkg/session/sessiontest"
	"github.com/dmitrymomot/scanauth/pkg/sessionmeta"
	"github.com/dmitrymomot/scanauth/pkg/usage"
	"github.com/dmitrymomot/scanauth/svc/auth"
)

var errStoreDown = errors.New("store down")

// fakeValidator replays results in order; the last one repeats. When block
// is set, Validate waits for it to close and ignores ctx.
type fakeValidator struct {
	mu      sync.Mutex
	results []backend.Result
	calls   int
	block   chan struct{}
}

func (v *fakeValidator) Validate(_ context.Context, _ *session.Session) backend.Result {
	if v.block != nil {
		<-v.block
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.results) == 0 {
		return backend.Valid
	}
	r := v.results[0]
	if len(v.results) > 1 {
		v.results = v.results[1:]
	}
	return r
}

func (v *fakeValidator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// flakyStore fails Get or Insert while the matching flag is set.
type flakyStore struct {
	*profile.MemoryStore
	failGet    atomic.Bool
	failInsert atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error) {
	if s.failGet.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *flakyStore) Insert(ctx context.Context, p *profile.Profile) error {
	if s.failInsert.Load() {
		return errStoreDown
	}
	return s.MemoryStore.Insert(ctx, p)
}

// spyRecorder captures the observations the tests assert on.
type spyRecorder struct {
	metrics.Nop
	mu          sync.Mutex
	signOuts    []string
	validations []string
	startups    []string
}

func (r *spyRecorder) RecordSignOut(winner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signOuts = append(r.signOuts, winner)
}

func (r *spyRecorder) RecordValidation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validations = append(r.validations, result)
}

func (r *spyRecorder) RecordStartup(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startups = append(r.startups, outcome)
}

func (r *spyRecorder) SignOuts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.signOuts...)
}

func (r *spyRecorder) Startups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.startups...)
}

type harness struct {
	mgr       *auth.Manager
	provider  *identitytest.Provider
	validator *fakeValidator
	store     *flakyStore
	pending   *profile.MemoryPendingStore
	cache     *sessionmeta.MemoryCache
	log       *usage.MemoryLog
	metrics   *spyRecorder
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.StartupTimeout = time.Second
	cfg.SignOutTimeout = 50 * time.Millisecond
	cfg.RevalidateInterval = 10 * time.Millisecond
	cfg.RevalidateMaxInterval = 20 * time.Millisecond
	cfg.FocusInterval = time.Hour
	return cfg
}

func newHarness(t *testing.T, cfg auth.Config, results ...backend.Result) *harness {
	t.Helper()

	h := &harness{
		provider:  identitytest.New(),
		validator: &fakeValidator{results: results},
		store:     &flakyStore{MemoryStore: profile.NewMemoryStore()},
		pending:   profile.NewMemoryPendingStore(),
		cache:     sessionmeta.NewMemoryCache(),
		log:       usage.NewMemoryLog(),
		metrics:   &spyRecorder{},
	}
	return h.build(t, cfg)
}

func (h *harness) build(t *testing.T, cfg auth.Config) *harness {
	t.Helper()

	reconciler := profile.NewReconciler(h.store, profile.WithPendingStore(h.pending))
	mgr, err := auth.NewManager(cfg, h.provider, h.validator, reconciler,
		auth.WithMetadataCache(h.cache),
		auth.WithUsage(usage.NewCounter(h.log)),
		auth.WithMetrics(h.metrics),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	h.mgr = mgr
	return h
}

// persist makes s look like a session left behind by a previous run.
func (h *harness) persist(t *testing.T, s *session.Session) {
	t.Helper()
	h.provider.SetCurrent(s)
	require.NoError(t, h.cache.Store(context.Background(), s))
}

func newSession(t *testing.T, email string, md map[string]any) *session.Session {
	t.Helper()
	return sessionFor(t, uuid.New(), email, md, time.Now().Add(time.Hour))
}

func sessionFor(t *testing.T, id uuid.UUID, email string, md map[string]any, exp time.Time) *session.Session {
	t.Helper()
	s, err := session.FromToken(&oauth2.Token{
		AccessToken:  sessiontest.AccessTokenWithMetadata(id, email, exp, md),
		TokenType:    "bearer",
		RefreshToken: "refresh-" + uuid.NewString(),
		Expiry:       exp,
	})
	require.NoError(t, err)
	return s
}

// refreshed returns a new credential for the same identity.
func refreshed(t *testing.T, s *session.Session) *session.Session {
	t.Helper()
	return sessionFor(t, s.IdentityID, s.Email, s.Metadata, s.ExpiresAt.Add(time.Hour))
}

func signInAs(t *testing.T, h *harness, s *session.Session) {
	t.Helper()
	h.provider.SignInFunc = func(context.Context, string, string) (*session.Session, error) {
		return s, nil
	}
	require.NoError(t, h.mgr.SignIn(context.Background(), s.Email, "Abc12345"))
	require.Equal(t, auth.StateAuthenticated, h.mgr.State())
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
