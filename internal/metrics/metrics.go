package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session"

// Metrics holds the collectors of one session core. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	flows           *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	authState       *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a private registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend auth API calls by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend auth API latencies in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		flows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_total",
				Help:      "Completed session flows by kind and outcome.",
			},
			[]string{"flow", "outcome"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Network token refreshes by outcome.",
			},
			[]string{"outcome"},
		),
		authState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "auth_state",
				Help:      "1 for the currently published auth state.",
			},
			[]string{"state"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.Registry.MustRegister(
		m.backendRequests, m.backendDuration, m.flows, m.refreshes, m.authState,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// ObserveBackendRequest records one auth API call
func (m *Metrics) ObserveBackendRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, outcome).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// FlowCompleted records the end of a login, signup, exchange, bootstrap or sign-out
func (m *Metrics) FlowCompleted(flow, outcome string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(flow, outcome).Inc()
}

// RefreshCompleted records one network refresh, shared callers count once
func (m *Metrics) RefreshCompleted(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// SetAuthState marks state as the only active state
func (m *Metrics) SetAuthState(state string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.authState.WithLabelValues(s).Set(0)
	}
	m.authState.WithLabelValues(state).Set(1)
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler with request counters and latencies
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
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
