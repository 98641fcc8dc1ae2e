package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/session"
)

const (
	maxErrorBody       = 64 << 10
	maxRetryInterval   = 5 * time.Minute
	defaultRetryPeriod = 10 * time.Second
)

// Config configures a GoTrueClient.
type Config struct {
	URL           string        `env:"IDENTITY_URL,required"`
	APIKey        string        `env:"IDENTITY_API_KEY"`
	Timeout       time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
	TokenFile     string        `env:"IDENTITY_TOKEN_FILE"`
	RefreshMargin time.Duration `env:"IDENTITY_REFRESH_MARGIN" envDefault:"1m"`
}

// GoTrueClient is a Provider backed by a GoTrue-compatible auth server.
type GoTrueClient struct {
	baseURL       *url.URL
	apiKey        string
	http          *http.Client
	store         TokenStore
	logger        *slog.Logger
	now           func() time.Time
	refreshMargin time.Duration
	retryInterval time.Duration

	events    *broker
	refreshMu sync.Mutex
	kick      chan struct{}
}

var _ Provider = (*GoTrueClient)(nil)

// Option configures a GoTrueClient.
type Option func(*GoTrueClient)

// WithAPIKey sets the project key sent in the apikey header.
func WithAPIKey(key string) Option {
	return func(c *GoTrueClient) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *GoTrueClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *GoTrueClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenStore sets where the token set is persisted.
func WithTokenStore(s TokenStore) Option {
	return func(c *GoTrueClient) {
		if s != nil {
			c.store = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *GoTrueClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *GoTrueClient) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshMargin sets how long before expiry a token is refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *GoTrueClient) {
		if d >= 0 {
			c.refreshMargin = d
		}
	}
}

// WithRetryInterval sets the first delay before retrying a failed background
// refresh. Later retries back off exponentially.
func WithRetryInterval(d time.Duration) Option {
	return func(c *GoTrueClient) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

// NewGoTrueClient returns a client for the auth server at baseURL.
func NewGoTrueClient(baseURL string, opts ...Option) (*GoTrueClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Join(ErrMissingConfig, fmt.Errorf("invalid auth server url %q", baseURL))
	}

	c := &GoTrueClient{
		baseURL:       u,
		http:          cleanhttp.DefaultPooledClient(),
		store:         NewMemoryTokenStore(),
		logger:        logger.Nop(),
		now:           time.Now,
		refreshMargin: time.Minute,
		retryInterval: defaultRetryPeriod,
		kick:          make(chan struct{}, 1),
	}
	c.http.Timeout = 10 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	c.events = newBroker(c.logger)
	return c, nil
}

// NewFromConfig builds a client from cfg. A TokenFile selects the file store.
func NewFromConfig(cfg Config, opts ...Option) (*GoTrueClient, error) {
	base := []Option{
		WithAPIKey(cfg.APIKey),
		WithTimeout(cfg.Timeout),
		WithRefreshMargin(cfg.RefreshMargin),
	}
	if cfg.TokenFile != "" {
		base = append(base, WithTokenStore(NewFileTokenStore(cfg.TokenFile)))
	}
	return NewGoTrueClient(cfg.URL, append(base, opts...)...)
}

// GetCurrentSession returns the stored session, refreshing it first when it
// is about to expire. A rejected refresh token clears the store.
func (c *GoTrueClient) GetCurrentSession(ctx context.Context) (*session.Session, error) {
	tok, err := c.store.Load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to load stored token",
			logger.Component("identity"),
			logger.Error(err),
		)
		return nil, nil
	}
	if tok == nil {
		return nil, nil
	}

	if c.needsRefresh(tok) {
		if tok.RefreshToken == "" {
			c.forget(ctx)
			return nil, nil
		}
		tok, err = c.refresh(ctx, tok)
		if errors.Is(err, ErrInvalidCredentials) {
			c.forget(ctx)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	s, err := session.FromToken(tok)
	if err != nil {
		c.logger.WarnContext(ctx, "stored token is not a valid session, discarding",
			logger.Component("identity"),
			logger.Error(err),
		)
		c.forget(ctx)
		return nil, nil
	}
	return s, nil
}

// SignUp registers a new account. When the server requires email
// verification the result carries no session.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", nil, "", body, &raw); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	if tr.AccessToken == "" {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, errors.Join(ErrUnavailable, err)
		}
		return &SignUpResult{User: u}, nil
	}

	s, err := c.establish(ctx, tr)
	if err != nil {
		return nil, err
	}
	res := &SignUpResult{Session: s}
	if tr.User != nil {
		res.User = *tr.User
	}
	return res, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &tr)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, tr)
}

// VerifyOTP completes an email verification or recovery link and signs the
// account in. Subscribers receive SIGNED_IN, or PASSWORD_RECOVERY for
// otpType "recovery".
func (c *GoTrueClient) VerifyOTP(ctx context.Context, otpType, email, token string) (*session.Session, error) {
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/verify", nil, "",
		map[string]string{"type": otpType, "email": email, "token": token}, &tr)
	if err != nil {
		return nil, err
	}
	s, err := c.establish(ctx, tr)
	if err != nil {
		return nil, err
	}

	typ := EventSignedIn
	if otpType == "recovery" {
		typ = EventPasswordRecovery
	}
	c.events.publish(ctx, Event{Type: typ, Session: s})
	return s, nil
}

// Forget deletes the stored token set.
func (c *GoTrueClient) Forget(ctx context.Context) error {
	if err := c.store.Delete(ctx); err != nil {
		return err
	}
	c.wake()
	return nil
}

// SignOut revokes accessToken at the server.
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

// ResetPasswordForEmail asks the server to send a recovery email.
func (c *GoTrueClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", q, "", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the password of the account owning accessToken.
func (c *GoTrueClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	if accessToken == "" {
		return ErrInvalidCredentials
	}
	var u User
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, map[string]string{"password": password}, &u); err != nil {
		return err
	}
	c.events.publish(ctx, Event{Type: EventUserUpdated})
	return nil
}

// Subscribe implements Provider.
func (c *GoTrueClient) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Close ends every subscription.
func (c *GoTrueClient) Close() error {
	c.events.close()
	return nil
}

// Run keeps the stored access token fresh until ctx is done. A refreshed
// token is announced as TOKEN_REFRESHED; a rejected refresh token clears
// the store and is announced as SIGNED_OUT.
func (c *GoTrueClient) Run(ctx context.Context) error {
	var backoff time.Duration
	for {
		var timer *time.Timer
		var fire <-chan time.Time
		if d, ok := c.refreshDelay(ctx, backoff); ok {
			timer = time.NewTimer(d)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		case <-c.kick:
			stopTimer(timer)
			backoff = 0
			continue
		case <-fire:
		}

		backoff = c.refreshStored(ctx, backoff)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// refreshDelay reports how long to wait before the next refresh, and false
// when there is nothing to refresh.
func (c *GoTrueClient) refreshDelay(ctx context.Context, backoff time.Duration) (time.Duration, bool) {
	if backoff > 0 {
		return backoff, true
	}
	tok, err := c.store.Load(ctx)
	if err != nil {
		return c.retryInterval, true
	}
	if tok == nil || tok.RefreshToken == "" || tok.Expiry.IsZero() {
		return 0, false
	}
	return max(tok.Expiry.Add(-c.refreshMargin).Sub(c.now()), 0), true
}

// refreshStored refreshes the stored token if due and returns the next
// backoff delay, zero on success.
func (c *GoTrueClient) refreshStored(ctx context.Context, backoff time.Duration) time.Duration {
	tok, err := c.store.Load(ctx)
	if err != nil || tok == nil || !c.needsRefresh(tok) {
		return 0
	}

	fresh, err := c.refresh(ctx, tok)
	switch {
	case err == nil:
		s, serr := session.FromToken(fresh)
		if serr != nil {
			c.logger.WarnContext(ctx, "refreshed token is not a valid session",
				logger.Component("identity"),
				logger.Error(serr),
			)
			return 0
		}
		c.events.publish(ctx, Event{Type: EventTokenRefreshed, Session: s})
		return 0
	case errors.Is(err, ErrInvalidCredentials):
		c.logger.InfoContext(ctx, "refresh token rejected, session ended",
			logger.Component("identity"),
		)
		c.forget(ctx)
		c.events.publish(ctx, Event{Type: EventSignedOut})
		return 0
	default:
		next := max(backoff*2, c.retryInterval)
		next = min(next, maxRetryInterval)
		c.logger.WarnContext(ctx, "token refresh failed, will retry",
			logger.Component("identity"),
			logger.Duration(next),
			logger.Error(err),
		)
		return next
	}
}

func (c *GoTrueClient) needsRefresh(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return !c.now().Before(tok.Expiry.Add(-c.refreshMargin))
}

// refresh exchanges tok's refresh token. Concurrent callers share a single
// exchange: whoever comes second sees the already refreshed token.
func (c *GoTrueClient) refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if stored, err := c.store.Load(ctx); err == nil && stored != nil &&
		stored.AccessToken != tok.AccessToken && !c.needsRefresh(stored) {
		return stored, nil
	}

	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": tok.RefreshToken}, &tr)
	if err != nil {
		return nil, err
	}

	fresh := tr.token(c.now())
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := c.store.Save(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// establish persists a freshly issued token set and returns its session.
func (c *GoTrueClient) establish(ctx context.Context, tr tokenResponse) (*session.Session, error) {
	tok := tr.token(c.now())
	s, err := session.FromToken(tok)
	if err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}
	if tr.User != nil {
		if s.Email == "" {
			s.Email = tr.User.Email
		}
		if tr.User.Metadata != nil {
			s.Metadata = tr.User.Metadata
		}
	}

	if err := c.store.Save(ctx, tok); err != nil {
		c.logger.WarnContext(ctx, "failed to persist token, session will not survive restart",
			logger.Component("identity"),
			logger.IdentityID(s.IdentityID),
			logger.Error(err),
		)
	}
	c.wake()
	return s, nil
}

func (c *GoTrueClient) forget(ctx context.Context) {
	if err := c.Forget(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to delete stored token",
			logger.Component("identity"),
			logger.Error(err),
		)
	}
}

func (c *GoTrueClient) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Join(ErrInvalidRequest, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, apiErr)
		return classify(apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(ErrUnavailable, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

func (r tokenResponse) token(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		tok.Expiry = time.Unix(r.ExpiresAt, 0).UTC()
	case r.ExpiresIn > 0:
		tok.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second).UTC()
	}
	return tok
}
