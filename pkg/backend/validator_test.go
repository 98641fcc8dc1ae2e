package backend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/session"
)

func testSession(token string) *session.Session {
	return &session.Session{
		Credential: &oauth2.Token{AccessToken: token},
		IdentityID: uuid.New(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   backend.Result
	}{
		{http.StatusOK, backend.Valid},
		{http.StatusNoContent, backend.Valid},
		{http.StatusFound, backend.Valid},
		{http.StatusUnauthorized, backend.Invalid},
		{http.StatusForbidden, backend.Valid},
		{http.StatusNotFound, backend.Valid},
		{http.StatusTooManyRequests, backend.Unreachable},
		{http.StatusInternalServerError, backend.Unreachable},
		{http.StatusBadGateway, backend.Unreachable},
		{http.StatusServiceUnavailable, backend.Unreachable},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backend.Classify(tt.status), "status %d", tt.status)
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sends bearer and api key", func(t *testing.T) {
		t.Parallel()

		headers := make(chan http.Header, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		v := backend.NewValidator(srv.URL, backend.WithAPIKey("anon-key"))
		assert.Equal(t, backend.Valid, v.Validate(ctx, testSession("tok")))
		got := <-headers
		assert.Equal(t, "Bearer tok", got.Get("Authorization"))
		assert.Equal(t, "anon-key", got.Get("apikey"))
	})

	t.Run("401 is invalid", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		assert.Equal(t, backend.Invalid, backend.NewValidator(srv.URL).Validate(ctx, testSession("tok")))
	})

	t.Run("5xx is unreachable", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(srv.Close)

		assert.Equal(t, backend.Unreachable, backend.NewValidator(srv.URL).Validate(ctx, testSession("tok")))
	})

	t.Run("redirect is valid and not followed", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		t.Cleanup(srv.Close)

		assert.Equal(t, backend.Valid, backend.NewValidator(srv.URL).Validate(ctx, testSession("tok")))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		assert.Equal(t, backend.Unreachable, backend.NewValidator(url).Validate(ctx, testSession("tok")))
	})

	t.Run("timeout is unreachable", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		v := backend.NewValidator(srv.URL, backend.WithTimeout(50*time.Millisecond))
		start := time.Now()
		assert.Equal(t, backend.Unreachable, v.Validate(ctx, testSession("tok")))
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("missing credential is invalid without a request", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		t.Cleanup(srv.Close)

		v := backend.NewValidator(srv.URL)
		assert.Equal(t, backend.Invalid, v.Validate(ctx, nil))
		assert.Equal(t, backend.Invalid, v.Validate(ctx, &session.Session{}))
		assert.Zero(t, hits.Load())
	})

	t.Run("bad endpoint is unreachable", func(t *testing.T) {
		t.Parallel()

		v := backend.NewValidator("://bad")
		require.Equal(t, backend.Unreachable, v.Validate(ctx, testSession("tok")))
	})
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "valid", backend.Valid.String())
	assert.Equal(t, "invalid", backend.Invalid.String())
	assert.Equal(t, "unreachable", backend.Unreachable.String())
}
