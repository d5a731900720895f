package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so SDK components can be built without a registry.
type Metrics struct {
	// HTTP metrics (example server)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth API metrics
	AuthRequestsTotal   *prometheus.CounterVec
	AuthRequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionTransitionsTotal *prometheus.CounterVec
	SessionRefreshesTotal   *prometheus.CounterVec

	// Data API metrics
	DataQueriesTotal   *prometheus.CounterVec
	DataQueryDuration  *prometheus.HistogramVec
	StorageOpsTotal    *prometheus.CounterVec
	GateDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idp_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_auth_requests_total",
				Help: "Total number of auth API requests",
			},
			[]string{"operation", "status"},
		),
		AuthRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idp_auth_request_duration_seconds",
				Help:    "Auth API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SessionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_session_transitions_total",
				Help: "Total number of session state transitions",
			},
			[]string{"from", "to", "event"},
		),
		SessionRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_session_refreshes_total",
				Help: "Total number of session refresh attempts",
			},
			[]string{"trigger", "status"},
		),
		DataQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_data_queries_total",
				Help: "Total number of data API calls",
			},
			[]string{"kind", "name", "status"},
		),
		DataQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idp_data_query_duration_seconds",
				Help:    "Data API call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind", "name"},
		),
		StorageOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_session_storage_operations_total",
				Help: "Total number of session storage operations",
			},
			[]string{"operation", "status"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_gate_decisions_total",
				Help: "Total number of gate evaluations by outcome",
			},
			[]string{"gate", "decision"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthRequestsTotal,
		m.AuthRequestDuration,
		m.SessionTransitionsTotal,
		m.SessionRefreshesTotal,
		m.DataQueriesTotal,
		m.DataQueryDuration,
		m.StorageOpsTotal,
		m.GateDecisionsTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAuthRequest records one auth API call
func (m *Metrics) ObserveAuthRequest(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.AuthRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.AuthRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveTransition records a session state change
func (m *Metrics) ObserveTransition(from, to, event string) {
	if m == nil {
		return
	}
	m.SessionTransitionsTotal.WithLabelValues(from, to, event).Inc()
}

// ObserveRefresh records a refresh attempt
func (m *Metrics) ObserveRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.SessionRefreshesTotal.WithLabelValues(trigger, statusLabel(err)).Inc()
}

// ObserveDataCall records a query or RPC against the data API
func (m *Metrics) ObserveDataCall(kind, name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.DataQueriesTotal.WithLabelValues(kind, name, statusLabel(err)).Inc()
	m.DataQueryDuration.WithLabelValues(kind, name).Observe(d.Seconds())
}

// ObserveStorage records a session storage operation
func (m *Metrics) ObserveStorage(operation string, err error) {
	if m == nil {
		return
	}
	m.StorageOpsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObserveGate records a gate decision
func (m *Metrics) ObserveGate(gate, decision string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(gate, decision).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request to a bounded label, such as a route template.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
