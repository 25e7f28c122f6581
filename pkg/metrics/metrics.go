// Package metrics holds the Prometheus collectors for audits, schema
// publications and WordPress re-verification, and serves them on /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geoaudit"

// DurationBuckets cover a fast mock answer up to the 30 s LLM timeout.
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	reg *prometheus.Registry

	analyses      *prometheus.CounterVec
	analysisDur   *prometheus.HistogramVec
	publications  *prometheus.CounterVec
	verifications *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "Audits finished, by target kind and producing tier",
		}, []string{"kind", "tier"}),
		analysisDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one audit including the LLM round trip",
			Buckets:   DurationBuckets,
		}, []string{"kind"}),
		publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Schema publications to WordPress, by final status",
		}, []string{"status"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_verifications_total",
			Help:      "Scheduled WordPress credential checks, by result",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests served, by method and status code",
		}, []string{"method", "code"}),
	}
	m.reg.MustRegister(
		m.analyses, m.analysisDur, m.publications, m.verifications, m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordOutcome counts a finished audit. It makes Metrics an audit.OutcomeSink.
func (m *Metrics) RecordOutcome(_ context.Context, o audit.Outcome) {
	m.analyses.WithLabelValues(string(o.Kind), string(o.Tier)).Inc()
	m.analysisDur.WithLabelValues(string(o.Kind)).Observe(o.Duration.Seconds())
}

// Publication counts a schema publication that ended in status.
func (m *Metrics) Publication(status string) {
	m.publications.WithLabelValues(status).Inc()
}

// Verification counts one integration check; result is "connected" or "failed".
func (m *Metrics) Verification(result string) {
	m.verifications.WithLabelValues(result).Inc()
}

// Middleware counts every request passing through next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.httpRequests, next)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

var _ audit.OutcomeSink = (*Metrics)(nil)
