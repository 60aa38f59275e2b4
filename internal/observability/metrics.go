package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service. The
// recording helpers are no-ops on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        prometheus.Counter

	// Relation metrics
	RelationProbesTotal      *prometheus.CounterVec
	RelationResolutionsTotal *prometheus.CounterVec
	RelationCacheHitsTotal   prometheus.Counter
	RelationCacheMissesTotal prometheus.Counter

	// Session metrics
	SessionsOpen     prometheus.Gauge
	SubmissionsTotal *prometheus.CounterVec

	// Catalog metrics
	CatalogReloadTotal *prometheus.CounterVec
	ResourcesLoaded    prometheus.Gauge
}

// InitMetrics creates and registers all metrics with the given registerer.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemadmin_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemadmin_http_request_size_bytes",
			Help:    "HTTP request body size",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemadmin_http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_backend_requests_total",
			Help: "Requests issued to the backend",
		}, []string{"method", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemadmin_backend_request_duration_seconds",
			Help:    "Backend request latency",
			Buckets: backendDurationBuckets,
		}, []string{"method"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schemadmin_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		BackendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemadmin_backend_retries_total",
			Help: "Backend request retries",
		}),

		// Relations
		RelationProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_relation_probes_total",
			Help: "Candidate endpoint probes by outcome",
		}, []string{"outcome"}),
		RelationResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_relation_resolutions_total",
			Help: "Relation option resolutions by source",
		}, []string{"source"}),
		RelationCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemadmin_relation_cache_hits_total",
			Help: "Relation option cache hits",
		}),
		RelationCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schemadmin_relation_cache_misses_total",
			Help: "Relation option cache misses",
		}),

		// Sessions
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schemadmin_sessions_open",
			Help: "Edit sessions currently open",
		}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_submissions_total",
			Help: "Record submissions by encoding and outcome",
		}, []string{"encoding", "outcome"}),

		// Catalog
		CatalogReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemadmin_catalog_reload_total",
			Help: "Endpoint catalog reloads by status",
		}, []string{"status"}),
		ResourcesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schemadmin_resources_loaded",
			Help: "Resources in the current catalog",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		m.RelationProbesTotal,
		m.RelationResolutionsTotal,
		m.RelationCacheHitsTotal,
		m.RelationCacheMissesTotal,
		m.SessionsOpen,
		m.SubmissionsTotal,
		m.CatalogReloadTotal,
		m.ResourcesLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordBackendRequest records one request to the backend. A transport
// failure is recorded with status 0.
func (m *Metrics) RecordBackendRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry() {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.Inc()
}

// RecordRelationProbe records one candidate endpoint probe. outcome is
// "success" or "failure".
func (m *Metrics) RecordRelationProbe(outcome string) {
	if m == nil {
		return
	}
	m.RelationProbesTotal.WithLabelValues(outcome).Inc()
}

// RecordRelationResolution records where a field's options came from.
func (m *Metrics) RecordRelationResolution(source string) {
	if m == nil {
		return
	}
	m.RelationResolutionsTotal.WithLabelValues(source).Inc()
}

// RecordRelationCacheHit records a relation option cache hit.
func (m *Metrics) RecordRelationCacheHit() {
	if m == nil {
		return
	}
	m.RelationCacheHitsTotal.Inc()
}

// RecordRelationCacheMiss records a relation option cache miss.
func (m *Metrics) RecordRelationCacheMiss() {
	if m == nil {
		return
	}
	m.RelationCacheMissesTotal.Inc()
}

// SessionOpened increments the open sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpen.Inc()
}

// SessionClosed decrements the open sessions gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsOpen.Dec()
}

// RecordSubmission records a submission by encoding and outcome.
func (m *Metrics) RecordSubmission(encoding, outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(encoding, outcome).Inc()
}

// RecordCatalogReload records a catalog reload.
func (m *Metrics) RecordCatalogReload(status string) {
	if m == nil {
		return
	}
	m.CatalogReloadTotal.WithLabelValues(status).Inc()
}

// SetResourcesLoaded sets the number of resources in the current catalog.
func (m *Metrics) SetResourcesLoaded(count float64) {
	if m == nil {
		return
	}
	m.ResourcesLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
