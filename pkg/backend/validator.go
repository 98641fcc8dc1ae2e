package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/session"
)

// Result is the classification of a validation attempt.
type Result int

const (
	// Unreachable means the outcome is unknown; the credential may still be good.
	Unreachable Result = iota
	// Valid means the resource API accepted the credential.
	Valid
	// Invalid means the resource API rejected the credential with 401.
	Invalid
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unreachable"
	}
}

// Config holds validator settings.
type Config struct {
	ValidationURL string        `env:"BACKEND_VALIDATION_URL,required"`
	APIKey        string        `env:"BACKEND_API_KEY"`
	Timeout       time.Duration `env:"BACKEND_VALIDATION_TIMEOUT" envDefault:"10s"`
}

// Validator probes a resource endpoint that answers 401 for bad credentials.
type Validator struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithAPIKey sends the key in the apikey header alongside the bearer token.
func WithAPIKey(key string) Option {
	return func(v *Validator) {
		v.apiKey = key
	}
}

// WithTimeout bounds a single validation request.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithHTTPClient replaces the pooled client. Redirect following is still
// disabled on the supplied client's copy.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) {
		if c != nil {
			cp := *c
			v.client = &cp
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator returns a Validator for endpoint.
func NewValidator(endpoint string, opts ...Option) *Validator {
	v := &Validator{
		endpoint: endpoint,
		timeout:  10 * time.Second,
		client:   cleanhttp.DefaultPooledClient(),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	// A 3xx already proves the credential passed the auth layer.
	v.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return v
}

// NewFromConfig builds a Validator from cfg.
func NewFromConfig(cfg Config, opts ...Option) *Validator {
	return NewValidator(cfg.ValidationURL, append([]Option{WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout)}, opts...)...)
}

// Validate classifies the session credential.
func (v *Validator) Validate(ctx context.Context, s *session.Session) Result {
	token := s.BearerToken()
	if token == "" {
		return Invalid
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		v.logger.ErrorContext(ctx, "failed to build validation request", logger.Component("backend"), logger.Error(err))
		return Unreachable
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.WarnContext(ctx, "validation request failed",
			logger.Component("backend"),
			logger.IdentityID(s.IdentityID),
			logger.Duration(time.Since(start)),
			slog.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			logger.Error(err),
		)
		return Unreachable
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result := Classify(resp.StatusCode)
	v.logger.DebugContext(ctx, "credential validated",
		logger.Component("backend"),
		logger.IdentityID(s.IdentityID),
		logger.Result(result.String()),
		slog.Int("status", resp.StatusCode),
		logger.Duration(time.Since(start)),
	)
	return result
}

// Classify maps an HTTP status code to a Result.
func Classify(status int) Result {
	switch {
	case status == http.StatusUnauthorized:
		return Invalid
	case status >= 200 && status < 400:
		return Valid
	case status == http.StatusTooManyRequests, status >= 500:
		return Unreachable
	case status >= 400:
		// Authenticated but refused for another reason (403, 404, ...).
		return Valid
	default:
		return Unreachable
	}
}
