package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/scanauth/pkg/metrics"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordTransition("anonymous", "initializing", "start")
	c.RecordTransition("anonymous", "initializing", "start")
	c.RecordValidation("valid")
	c.RecordSignOut("timeout")
	c.RecordProfile("created")
	c.RecordStartup("authenticated", 120*time.Millisecond)

	n, err := testutil.GatherAndCount(reg,
		"scanauth_state_transitions_total",
		"scanauth_backend_validations_total",
		"scanauth_signout_race_total",
		"scanauth_profile_reconcile_total",
		"scanauth_startup_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "scanauth_state_transitions_total" {
			assert.Equal(t, float64(2), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordValidation("unreachable")

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scanauth_backend_validations_total{result="unreachable"} 1`)
}

func TestNop(t *testing.T) {
	t.Parallel()

	var r metrics.Recorder = metrics.Nop{}
	assert.NotPanics(t, func() {
		r.RecordTransition("a", "b", "c")
		r.RecordStartup("x", time.Second)
	})
}
