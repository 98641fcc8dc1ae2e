// Package metrics exposes Prometheus counters for the auth lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives lifecycle observations. svc/auth depends on this
// interface only.
type Recorder interface {
	RecordTransition(from, to, event string)
	RecordValidation(result string)
	RecordSignOut(winner string)
	RecordProfile(outcome string)
	RecordStartup(outcome string, d time.Duration)
}

// Collector is the Prometheus Recorder.
type Collector struct {
	transitions *prometheus.CounterVec
	validations *prometheus.CounterVec
	signOuts    *prometheus.CounterVec
	profiles    *prometheus.CounterVec
	startups    *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanauth_state_transitions_total",
			Help: "Auth state transitions by source state, target state and event.",
		}, []string{"from", "to", "event"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanauth_backend_validations_total",
			Help: "Backend credential validations by result.",
		}, []string{"result"}),
		signOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanauth_signout_race_total",
			Help: "Remote sign-out race outcomes.",
		}, []string{"winner"}),
		profiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanauth_profile_reconcile_total",
			Help: "Profile reconciliation outcomes.",
		}, []string{"outcome"}),
		startups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanauth_startup_seconds",
			Help:    "Session recovery duration at startup by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.transitions, c.validations, c.signOuts, c.profiles, c.startups)
	return c
}

func (c *Collector) RecordTransition(from, to, event string) {
	c.transitions.WithLabelValues(from, to, event).Inc()
}

func (c *Collector) RecordValidation(result string) {
	c.validations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSignOut(winner string) {
	c.signOuts.WithLabelValues(winner).Inc()
}

func (c *Collector) RecordProfile(outcome string) {
	c.profiles.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStartup(outcome string, d time.Duration) {
	c.startups.WithLabelValues(outcome).Observe(d.Seconds())
}

// Nop discards every observation.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordTransition(string, string, string) {}
func (Nop) RecordValidation(string)                 {}
func (Nop) RecordSignOut(string)                    {}
func (Nop) RecordProfile(string)                    {}
func (Nop) RecordStartup(string, time.Duration)     {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
