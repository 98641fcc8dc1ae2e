// Package resource is a client for the PostgREST-style resource API that
// stores profiles and usage logs on behalf of the signed-in identity.
package resource

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
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/dmitrymomot/scanauth/pkg/logger"
)

var (
	ErrUnauthorized     = errors.New("resource.unauthorized")
	ErrUnavailable      = errors.New("resource.unavailable")
	ErrConflict         = errors.New("resource.conflict")
	ErrUnexpectedStatus = errors.New("resource.unexpected_status")
	ErrMissingConfig    = errors.New("resource.missing_config")
)

// CredentialFunc returns the bearer token for the next request. An empty
// token sends requests with the API key only.
type CredentialFunc func(ctx context.Context) (string, error)

// Config configures a Client.
type Config struct {
	URL     string        `env:"RESOURCE_URL,required"`
	APIKey  string        `env:"RESOURCE_API_KEY"`
	Timeout time.Duration `env:"RESOURCE_TIMEOUT" envDefault:"10s"`
}

// Client issues authenticated requests against the resource API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	http       *http.Client
	credential CredentialFunc
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the apikey header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithCredential sets where bearer tokens come from.
func WithCredential(fn CredentialFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.credential = fn
		}
	}
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Join(ErrMissingConfig, fmt.Errorf("invalid resource api url %q", baseURL))
	}

	c := &Client{
		baseURL:    u,
		http:       cleanhttp.DefaultPooledClient(),
		credential: func(context.Context) (string, error) { return "", nil },
		logger:     logger.Nop(),
	}
	c.http.Timeout = 10 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig builds a Client from cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	base := []Option{WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout)}
	return NewClient(cfg.URL, append(base, opts...)...)
}

type request struct {
	method  string
	table   string
	query   url.Values
	body    any
	headers map[string]string
}

// do sends r and decodes a JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, r request, out any) (*http.Response, error) {
	u := c.baseURL.JoinPath(r.table)
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	token, err := c.credential(ctx)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		c.logger.DebugContext(ctx, "resource api request failed",
			logger.Component("resource"),
			slog.String("method", r.method),
			slog.String("table", r.table),
			slog.Int("status", resp.StatusCode),
		)
		return resp, err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp, fmt.Errorf("decode %s response: %w", r.table, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	detail := fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Join(ErrUnauthorized, detail)
	case resp.StatusCode == http.StatusConflict:
		return errors.Join(ErrConflict, detail)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Join(ErrUnavailable, detail)
	default:
		return errors.Join(ErrUnexpectedStatus, detail)
	}
}

func eq(v string) string { return "eq." + v }
