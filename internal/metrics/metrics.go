// Package metrics exposes Prometheus counters for the authentication core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered by the server
type Metrics struct {
	authAttempts *prometheus.CounterVec
	tokenRefresh *prometheus.CounterVec
	auditWrites  *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
	gatherer     prometheus.Gatherer
}

// New creates the collectors and registers them with reg. When reg is also a
// prometheus.Gatherer, Handler serves from it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastetrack_auth_attempts_total",
			Help: "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastetrack_token_refresh_total",
			Help: "Refresh token redemptions by outcome.",
		}, []string{"outcome"}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastetrack_audit_writes_total",
			Help: "Audit records by outcome (persisted, fallback, rejected).",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wastetrack_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wastetrack_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
	}

	reg.MustRegister(m.authAttempts, m.tokenRefresh, m.auditWrites, m.httpDuration, m.httpInFlight)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// AuthAttempt counts a login attempt
func (m *Metrics) AuthAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(method, outcome).Inc()
}

// TokenRefresh counts a refresh outcome
func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(outcome).Inc()
}

// AuditWrite counts an audit pipeline outcome
func (m *Metrics) AuditWrite(outcome string) {
	if m == nil {
		return
	}
	m.auditWrites.WithLabelValues(outcome).Inc()
}

// Handler serves the registered metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records latency per route. route is the mux pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
