// Package observability exposes prometheus metrics for the HTTP surface
// and the posting engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics on a dedicated registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsPosted    *prometheus.CounterVec
	duplicateSkips  *prometheus.CounterVec
	inconsistencies prometheus.Gauge
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetline_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetline_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetline_posting_events_total",
		Help: "Domain events posted by kind.",
	}, []string{"event"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetline_posting_duplicates_total",
		Help: "Duplicate event deliveries skipped by kind.",
	}, []string{"event"})
	inconsistencies := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetline_ledger_inconsistencies",
		Help: "Allocation invariant violations found by the last integrity scan.",
	})
	registry.MustRegister(requests, duration, posted, duplicates, inconsistencies)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		eventsPosted:    posted,
		duplicateSkips:  duplicates,
		inconsistencies: inconsistencies,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// EventPosted counts a processed domain event.
func (m *Metrics) EventPosted(kind string) {
	if m == nil {
		return
	}
	m.eventsPosted.WithLabelValues(kind).Inc()
}

// DuplicateSkipped counts a delivery skipped by the idempotency guard.
func (m *Metrics) DuplicateSkipped(kind string) {
	if m == nil {
		return
	}
	m.duplicateSkips.WithLabelValues(kind).Inc()
}

// SetInconsistencies reports the finding count of an integrity scan.
func (m *Metrics) SetInconsistencies(count int) {
	if m == nil {
		return
	}
	m.inconsistencies.Set(float64(count))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
