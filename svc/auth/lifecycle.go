package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/scanauth/pkg/async"
	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/session"
	"github.com/dmitrymomot/scanauth/pkg/validator"
)

// Startup outcomes, used as metric labels.
const (
	startupNoBreadcrumb  = "no_breadcrumb"
	startupNoSession     = "no_session"
	startupAuthenticated = "authenticated"
	startupUnverified    = "unverified"
	startupInvalid       = "invalid"
	startupUnreachable   = "unreachable"
	startupTimeout       = "timeout"
	startupCanceled      = "canceled"
	startupFailed        = "failed"
)

// Start recovers a persisted session. It may be called once; later calls
// return ErrAlreadyStarted. Recovery is bounded by Config.StartupTimeout,
// after which the Manager is anonymous and ErrStartupTimeout is returned.
// Canceling ctx leaves the Manager anonymous without touching stored state.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	return m.exec(ctx, "start", m.start)
}

func (m *Manager) start(ctx context.Context) error {
	began := m.now()
	m.loading.Store(true)
	defer m.loading.Store(false)

	if _, err := m.machine.Fire(ctx, EventStart); err != nil {
		if m.State() == StateAuthenticated {
			return ErrAlreadyAuthenticated
		}
		return errors.Join(ErrAlreadyStarted, err)
	}

	if !m.cache.HadRecentSession(ctx) {
		m.finishStartup(ctx, startupNoBreadcrumb, began)
		return nil
	}

	startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()

	s, err := async.Go(startCtx, m.provider.GetCurrentSession).AwaitContext(startCtx)
	if err != nil {
		return m.failStartup(ctx, startCtx, err, began)
	}
	if s == nil {
		m.holder.Clear(ctx)
		m.finishStartup(ctx, startupNoSession, began)
		return nil
	}

	result, err := async.Go(startCtx, func(ctx context.Context) (backend.Result, error) {
		return m.validator.Validate(ctx, s), nil
	}).AwaitContext(startCtx)
	if err != nil {
		return m.failStartup(ctx, startCtx, err, began)
	}
	m.metrics.RecordValidation(result.String())

	switch result {
	case backend.Valid:
		m.authenticate(startCtx, EventRecovered, s, true)
		m.recordStartup(startupAuthenticated, began)
		return nil

	case backend.Invalid:
		m.holder.Clear(ctx)
		if err := m.provider.Forget(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to forget rejected credential", logger.Component("auth"), logger.Error(err))
		}
		m.finishStartup(ctx, startupInvalid, began)
		return ErrInvalidCredential

	default:
		if m.cfg.UnreachablePolicy == PolicyFailClosed {
			// Breadcrumb and provider tokens stay so the next start can retry.
			m.finishStartup(ctx, startupUnreachable, began)
			return ErrTransientNetwork
		}
		m.authenticate(startCtx, EventRecovered, s, false)
		m.scheduleRevalidation(s)
		m.recordStartup(startupUnverified, began)
		return nil
	}
}

// finishStartup lands in anonymous after an unsuccessful recovery.
func (m *Manager) finishStartup(ctx context.Context, outcome string, began time.Time) {
	if _, err := m.machine.Fire(ctx, EventRecoveryFailed); err != nil {
		m.logger.ErrorContext(ctx, "failed to leave initializing", logger.Component("auth"), logger.Error(err))
	}
	m.current.Store(nil)
	m.recordStartup(outcome, began)
}

func (m *Manager) failStartup(ctx, startCtx context.Context, err error, began time.Time) error {
	switch {
	case ctx.Err() != nil:
		m.finishStartup(ctx, startupCanceled, began)
		return ctx.Err()
	case errors.Is(startCtx.Err(), context.DeadlineExceeded):
		m.logger.WarnContext(ctx, "session recovery timed out",
			logger.Component("auth"),
			logger.Duration(m.cfg.StartupTimeout),
		)
		m.finishStartup(ctx, startupTimeout, began)
		return ErrStartupTimeout
	default:
		m.logger.WarnContext(ctx, "session recovery failed", logger.Component("auth"), logger.Error(err))
		m.finishStartup(ctx, startupFailed, began)
		return providerError(err)
	}
}

func (m *Manager) recordStartup(outcome string, began time.Time) {
	m.metrics.RecordStartup(outcome, m.now().Sub(began))
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	return m.exec(ctx, "sign_in", func(ctx context.Context) error {
		if m.State() != StateAnonymous {
			return ErrAlreadyAuthenticated
		}
		m.loading.Store(true)
		defer m.loading.Store(false)

		s, err := m.provider.SignInWithPassword(ctx, email, password)
		if err != nil {
			m.logger.InfoContext(ctx, "sign-in failed",
				logger.Component("auth"),
				logger.Email(email),
				logger.Error(err),
			)
			return providerError(err)
		}
		if s == nil {
			return ErrInvalidCredential
		}

		m.authenticate(ctx, EventSignedIn, s, true)
		return nil
	})
}

// SignUpRequest carries credentials and the profile fields collected at sign-up.
type SignUpRequest struct {
	Email    string
	Password string
	Fields   profile.Fields
}

// SignUpResult describes the outcome of a successful sign-up.
type SignUpResult struct {
	User identity.User
	// VerificationRequired is true when the provider did not issue a session
	// yet. The submitted profile fields are applied once it does.
	VerificationRequired bool
}

// SignUp registers a new account after checking the email and password shape.
// Profile fields that cannot be written now are parked as a pending update;
// the sign-up itself is never rolled back.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if err := validator.Apply(
		validator.Email("email", req.Email),
		validator.Password("password", req.Password, validator.DefaultPasswordPolicy()),
	); err != nil {
		return nil, err
	}

	var out *SignUpResult
	err := m.exec(ctx, "sign_up", func(ctx context.Context) error {
		if m.State() != StateAnonymous {
			return ErrAlreadyAuthenticated
		}
		m.loading.Store(true)
		defer m.loading.Store(false)

		fields := req.Fields.Normalize()
		res, err := m.provider.SignUp(ctx, req.Email, req.Password, profile.MetadataFromFields(fields))
		if err != nil {
			m.logger.InfoContext(ctx, "sign-up failed",
				logger.Component("auth"),
				logger.Email(req.Email),
				logger.Error(err),
			)
			return providerError(err)
		}

		if res.Session == nil {
			if err := m.reconciler.Defer(ctx, req.Email, res.User.ID, fields); err != nil {
				m.logger.WarnContext(ctx, "failed to park sign-up profile fields",
					logger.Component("auth"),
					logger.Email(req.Email),
					logger.Error(err),
				)
			}
			out = &SignUpResult{User: res.User, VerificationRequired: true}
			return nil
		}

		if !m.establish(ctx, EventSignedIn, res.Session, true) {
			return ErrAlreadyAuthenticated
		}
		id := identityOf(res.Session)
		p, err := m.reconciler.Create(ctx, id, fields)
		if err != nil {
			m.metrics.RecordProfile("failed")
			m.logger.WarnContext(ctx, "failed to create profile at sign-up, deferring",
				logger.Component("auth"),
				logger.IdentityID(id.ID),
				logger.Error(err),
			)
			if err := m.reconciler.Defer(ctx, id.Email, id.ID, fields); err != nil {
				m.logger.WarnContext(ctx, "failed to park sign-up profile fields",
					logger.Component("auth"),
					logger.IdentityID(id.ID),
					logger.Error(err),
				)
			}
		} else {
			m.metrics.RecordProfile("created")
			m.current.Store(p)
		}

		out = &SignUpResult{User: res.User, VerificationRequired: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SignOut clears local session state and returns. The remote revocation
// runs detached; its outcome is only logged. Calling SignOut while anonymous
// is a no-op. Local cleanup ignores ctx cancellation; only a closed Manager
// skips it.
func (m *Manager) SignOut(ctx context.Context) {
	err := m.exec(context.WithoutCancel(ctx), "sign_out", func(ctx context.Context) error {
		m.teardown(ctx, "sign_out", true)
		return nil
	})
	if err != nil {
		m.logger.DebugContext(ctx, "sign-out not queued", logger.Component("auth"), logger.Error(err))
	}
}

// handleEvent applies a provider event. Runs on the loop goroutine.
func (m *Manager) handleEvent(ctx context.Context, e identity.Event) {
	log := m.logger.With(logger.Component("auth"), logger.Event(string(e.Type)))

	if e.Session != nil && m.revoked != "" && e.Session.BearerToken() == m.revoked {
		log.DebugContext(ctx, "dropping event for a signed-out credential")
		return
	}

	switch e.Type {
	case identity.EventSignedIn:
		if e.Session == nil {
			log.WarnContext(ctx, "sign-in event without session")
			return
		}
		m.authenticate(ctx, EventSignedIn, e.Session, true)

	case identity.EventTokenRefreshed:
		if e.Session == nil || m.State() != StateAuthenticated {
			log.DebugContext(ctx, "dropping token refresh outside an authenticated session")
			return
		}
		if cur := m.holder.Current(); cur != nil && cur.IdentityID != e.Session.IdentityID {
			log.WarnContext(ctx, "dropping token refresh for another identity", logger.IdentityID(e.Session.IdentityID))
			return
		}
		m.authenticate(ctx, EventTokenRefreshed, e.Session, m.verified.Load())
		if !m.verified.Load() {
			m.scheduleRevalidation(e.Session)
		}

	case identity.EventSignedOut:
		m.teardown(ctx, "signed_out_externally", false)

	default:
		log.InfoContext(ctx, "provider event")
	}
}

// authenticate stores s, fires event and reconciles the profile.
func (m *Manager) authenticate(ctx context.Context, event Event, s *session.Session, verified bool) {
	if !m.establish(ctx, event, s, verified) {
		return
	}
	m.reconcile(ctx, s)
}

// establish fires event and makes s the current session. A different identity
// replaces the current profile.
func (m *Manager) establish(ctx context.Context, event Event, s *session.Session, verified bool) bool {
	if _, err := m.machine.Fire(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "transition rejected",
			logger.Component("auth"),
			logger.State(string(m.State())),
			logger.Event(string(event)),
			logger.Error(err),
		)
		return false
	}

	if p := m.current.Load(); p != nil && p.ID != s.IdentityID {
		m.current.Store(nil)
	}
	if prev := m.holder.Current(); prev != nil && prev.IdentityID != s.IdentityID {
		m.stopRevalidation()
	}
	m.holder.Set(ctx, s)
	m.verified.Store(verified)
	return true
}

// reconcile runs the profile reconciler. Failures keep the session and are
// retried on the next token refresh or Focus.
func (m *Manager) reconcile(ctx context.Context, s *session.Session) {
	p, err := m.reconciler.Ensure(ctx, identityOf(s))
	if err != nil {
		m.metrics.RecordProfile("failed")
		m.logger.WarnContext(ctx, "profile reconciliation failed",
			logger.Component("auth"),
			logger.IdentityID(s.IdentityID),
			logger.Error(err),
		)
		return
	}
	m.metrics.RecordProfile("reconciled")
	m.current.Store(p)
}

// teardown is the only path that destroys an authenticated session. Local
// state is cleared before the optional remote sign-out is dispatched.
func (m *Manager) teardown(ctx context.Context, reason string, remote bool) {
	if m.State() != StateAuthenticated {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if _, err := m.machine.Fire(ctx, EventSignOut); err != nil {
		m.logger.ErrorContext(ctx, "failed to enter signing out", logger.Component("auth"), logger.Error(err))
		return
	}

	s := m.holder.Current()
	m.stopRevalidation()
	m.holder.Clear(ctx)
	m.current.Store(nil)
	m.verified.Store(false)
	if err := m.provider.Forget(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to forget provider credentials", logger.Component("auth"), logger.Error(err))
	}
	m.revoked = s.BearerToken()

	if _, err := m.machine.Fire(ctx, EventCleanedUp); err != nil {
		m.logger.ErrorContext(ctx, "failed to leave signing out", logger.Component("auth"), logger.Error(err))
	}

	m.logger.InfoContext(ctx, "session cleared",
		logger.Component("auth"),
		logger.IdentityID(identityIDOf(s)),
		logger.Action(reason),
	)

	if remote && s.BearerToken() != "" {
		m.raceRemoteSignOut(ctx, s)
	}
}

// raceRemoteSignOut dispatches provider sign-out without waiting for it.
// Whichever of the call and SignOutTimeout finishes first is logged.
func (m *Manager) raceRemoteSignOut(ctx context.Context, s *session.Session) {
	token := s.BearerToken()
	fut := async.Detached(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.provider.SignOut(ctx, token)
	})

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		_, err := fut.AwaitWithTimeout(m.cfg.SignOutTimeout)

		winner := "remote"
		switch {
		case errors.Is(err, async.ErrTimeout):
			winner = "timeout"
			m.logger.InfoContext(ctx, "remote sign-out still pending, detached",
				logger.Component("auth"),
				logger.IdentityID(s.IdentityID),
				logger.Duration(m.cfg.SignOutTimeout),
			)
		case err != nil:
			winner = "error"
			m.logger.WarnContext(ctx, "remote sign-out failed",
				logger.Component("auth"),
				logger.IdentityID(s.IdentityID),
				logger.Error(err),
			)
		default:
			m.logger.InfoContext(ctx, "remote sign-out completed",
				logger.Component("auth"),
				logger.IdentityID(s.IdentityID),
			)
		}
		m.metrics.RecordSignOut(winner)
	}()
}

var errStaleSession = errors.New("auth.stale_session")

// scheduleRevalidation re-checks an unverified session with exponential
// backoff until it is classified, replaced or torn down. Loop goroutine only.
func (m *Manager) scheduleRevalidation(s *session.Session) {
	m.stopRevalidation()

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.cancelRevalidate = cancel
	token := s.BearerToken()

	b := retry.NewExponential(m.cfg.RevalidateInterval)
	b = retry.WithCappedDuration(m.cfg.RevalidateMaxInterval, b)
	if m.cfg.RevalidateMaxAttempts > 0 {
		b = retry.WithMaxRetries(m.cfg.RevalidateMaxAttempts, b)
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		timer := time.NewTimer(m.cfg.RevalidateInterval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := retry.Do(ctx, b, func(ctx context.Context) error {
			return m.exec(ctx, "revalidate", func(ctx context.Context) error {
				return m.revalidate(ctx, token)
			})
		})
		switch {
		case err == nil, errors.Is(err, errStaleSession), errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		default:
			m.logger.WarnContext(ctx, "giving up re-validation, session stays unverified",
				logger.Component("auth"),
				logger.IdentityID(s.IdentityID),
				logger.Error(err),
			)
		}
	}()
}

func (m *Manager) revalidate(ctx context.Context, token string) error {
	s := m.holder.Current()
	if s == nil || s.BearerToken() != token || m.State() != StateAuthenticated {
		return errStaleSession
	}

	result := m.validator.Validate(ctx, s)
	m.metrics.RecordValidation(result.String())

	switch result {
	case backend.Valid:
		m.verified.Store(true)
		m.logger.InfoContext(ctx, "session verified", logger.Component("auth"), logger.IdentityID(s.IdentityID))
		if m.current.Load() == nil {
			m.reconcile(ctx, s)
		}
		return nil
	case backend.Invalid:
		m.teardown(ctx, "revalidation_rejected", false)
		return nil
	default:
		return retry.RetryableError(ErrTransientNetwork)
	}
}

func (m *Manager) stopRevalidation() {
	if m.cancelRevalidate != nil {
		m.cancelRevalidate()
		m.cancelRevalidate = nil
	}
}

func identityOf(s *session.Session) profile.Identity {
	return profile.Identity{ID: s.IdentityID, Email: s.Email, Metadata: s.Metadata}
}

func identityIDOf(s *session.Session) uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.IdentityID
}
