// Package metrics holds the Prometheus collectors exported by entrywatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
//
// A nil *Metrics is valid and records nothing, so library users that do not
// care about metrics never have to construct one.
type Metrics struct {
	PollsTotal          *prometheus.CounterVec
	FetchErrorsTotal    *prometheus.CounterVec
	TransitionsTotal    *prometheus.CounterVec
	AlertsTotal         *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	Targets             prometheus.Gauge
	PersistFlushesTotal *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from panicking on duplicates.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "entrywatch_polls_total",
			Help: "Completed polls by resulting status.",
		}, []string{"status"}),
		FetchErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "entrywatch_fetch_errors_total",
			Help: "Failed fetches by kind (timeout, network, http).",
		}, []string{"kind"}),
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "entrywatch_transitions_total",
			Help: "Classified state transitions, NONE excluded.",
		}, []string{"transition"}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "entrywatch_alerts_total",
			Help: "Alert dispatch decisions by kind and outcome.",
		}, []string{"kind", "outcome"}), // outcome: fired, suppressed, busy, notify_failed
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "entrywatch_fetch_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		Targets: f.NewGauge(prometheus.GaugeOpts{
			Name: "entrywatch_targets",
			Help: "Number of watched targets.",
		}),
		PersistFlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "entrywatch_persist_flushes_total",
			Help: "Persistence snapshot flushes by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncPoll(status string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncFetchError(kind string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncTransition(transition string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncAlert(kind, outcome string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) SetTargets(n int) {
	if m == nil {
		return
	}
	m.Targets.Set(float64(n))
}

func (m *Metrics) IncFlush(result string) {
	if m == nil {
		return
	}
	m.PersistFlushesTotal.WithLabelValues(result).Inc()
}
