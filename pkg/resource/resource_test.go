package resource_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/profile"
	"github.com/dmitrymomot/scanauth/pkg/resource"
	"github.com/dmitrymomot/scanauth/pkg/usage"
)

// restAPI is a tiny in-memory stand-in for the resource API.
type restAPI struct {
	mu       sync.Mutex
	profiles map[string]map[string]any
	logs     []map[string]any
	auth     []string
	status   int
}

func newRestAPI(t *testing.T) (*restAPI, *httptest.Server) {
	t.Helper()
	api := &restAPI{profiles: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *restAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.auth = append(a.auth, r.Header.Get("Authorization"))
	if a.status != 0 {
		w.WriteHeader(a.status)
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	q := r.URL.Query()
	id := strings.TrimPrefix(q.Get("id"), "eq.")

	switch {
	case r.URL.Path == "/profiles" && r.Method == http.MethodGet:
		rows := []map[string]any{}
		if p, ok := a.profiles[id]; ok {
			rows = append(rows, p)
		}
		writeJSON(w, http.StatusOK, rows)
	case r.URL.Path == "/profiles" && r.Method == http.MethodPost:
		pid := body["id"].(string)
		if _, ok := a.profiles[pid]; ok {
			writeJSON(w, http.StatusConflict, map[string]any{"code": "23505"})
			return
		}
		body["created_at"] = time.Now().UTC()
		a.profiles[pid] = body
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/profiles" && r.Method == http.MethodPatch:
		p, ok := a.profiles[id]
		if !ok {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		for k, v := range body {
			p[k] = v
		}
		writeJSON(w, http.StatusOK, []any{p})
	case r.URL.Path == "/usage_logs" && r.Method == http.MethodPost:
		a.logs = append(a.logs, body)
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/usage_logs" && r.Method == http.MethodGet:
		since, _ := time.Parse(time.RFC3339Nano, strings.TrimPrefix(q.Get("created_at"), "gte."))
		n := 0
		for _, e := range a.logs {
			at, _ := time.Parse(time.RFC3339Nano, e["created_at"].(string))
			if "eq."+e["user_id"].(string) == q.Get("user_id") && "eq."+e["action"].(string) == q.Get("action") && !at.Before(since) {
				n++
			}
		}
		if n == 0 {
			w.Header().Set("Content-Range", "*/0")
		} else {
			w.Header().Set("Content-Range", "0-0/"+itoa(n))
		}
		writeJSON(w, http.StatusPartialContent, []any{})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, url string, token string) *resource.Client {
	t.Helper()
	c, err := resource.NewClient(url,
		resource.WithAPIKey("anon"),
		resource.WithCredential(func(context.Context) (string, error) { return token, nil }),
	)
	require.NoError(t, err)
	return c
}

func TestProfileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api, srv := newRestAPI(t)
	store := newClient(t, srv.URL, "user-token").Profiles()
	id := uuid.New()

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, profile.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &profile.Profile{ID: id, FirstName: "Jo", PlanType: "free", Settings: map[string]any{"theme": "dark"}}))
	assert.ErrorIs(t, store.Insert(ctx, &profile.Profile{ID: id}), profile.ErrAlreadyExists)

	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jo", p.FirstName)
	assert.Equal(t, "free", p.PlanType)

	p, err = store.Update(ctx, id, profile.Fields{Company: profile.String("Acme"), Settings: map[string]any{"lang": "en"}})
	require.NoError(t, err)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "Jo", p.FirstName)
	assert.Equal(t, map[string]any{"theme": "dark", "lang": "en"}, p.Settings)

	_, err = store.Update(ctx, uuid.New(), profile.Fields{Company: profile.String("x")})
	assert.ErrorIs(t, err, profile.ErrNotFound)

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, h := range api.auth {
		assert.Equal(t, "Bearer user-token", h)
	}
}

func TestProfileStore_Reconciler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, srv := newRestAPI(t)
	r := profile.NewReconciler(newClient(t, srv.URL, "tok").Profiles())

	id := profile.Identity{ID: uuid.New(), Metadata: map[string]any{"first_name": "ann"}}
	p, err := r.Ensure(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.FirstName)
	assert.Equal(t, profile.DefaultPlanType, p.PlanType)
}

func TestUsageLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, srv := newRestAPI(t)
	log := newClient(t, srv.URL, "tok").UsageLogs()
	id := uuid.New()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{start.Add(-time.Second), start, start.Add(time.Second)} {
		require.NoError(t, log.Append(ctx, usage.Entry{ID: uuid.New(), IdentityID: id, Action: "analysis", CreatedAt: at}))
	}

	n, err := log.Count(ctx, id, "analysis", start)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = log.Count(ctx, id, "export", start)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	c := usage.NewCounter(log, usage.WithClock(func() time.Time { return start.Add(48 * time.Hour) }))
	n, err = c.MonthlyUsage(ctx, id, "analysis")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, resource.ErrUnauthorized},
		{http.StatusServiceUnavailable, resource.ErrUnavailable},
		{http.StatusTooManyRequests, resource.ErrUnavailable},
		{http.StatusBadRequest, resource.ErrUnexpectedStatus},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			api, srv := newRestAPI(t)
			api.mu.Lock()
			api.status = tt.status
			api.mu.Unlock()
			_, err := newClient(t, srv.URL, "tok").Profiles().Get(ctx, uuid.New())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("anonymous requests use the api key", func(t *testing.T) {
		t.Parallel()

		api, srv := newRestAPI(t)
		_, _ = newClient(t, srv.URL, "").Profiles().Get(ctx, uuid.New())
		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Equal(t, []string{"Bearer anon"}, api.auth)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		_, err := resource.NewClient("::")
		assert.ErrorIs(t, err, resource.ErrMissingConfig)
	})
}
