package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/model"
)

func observabilityReady() observability.ReadinessChecks {
	return observability.ReadinessChecks{CatalogLoaded: func() bool { return true }}
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/ui/health", nil)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, "GET", "/ui/ready", nil); w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	ts.deps.Readiness = observability.ReadinessChecks{CatalogLoaded: func() bool { return false }}
	ts.handler = NewRouter(ts.deps)
	if w := ts.do(t, "GET", "/ui/ready", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before the catalog loads", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, "GET", "/metrics", nil); w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	ts.deps.Config.Observability.Metrics.Enabled = false
	ts.handler = NewRouter(ts.deps)
	if w := ts.do(t, "GET", "/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want 404", w.Code)
	}
}

func TestNewRouter_recordsRequestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.deps.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	ts.handler = NewRouter(ts.deps)

	ts.do(t, "GET", "/api/resources/role", nil)
	if got := testutil.CollectAndCount(ts.deps.Metrics.HTTPRequestsTotal); got != 1 {
		t.Errorf("http request series = %d, want 1", got)
	}
}

func TestNewRouter_routesAreRegistered(t *testing.T) {
	ts := newTestServer(t)
	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/resources"},
		{"GET", "/api/resources/role"},
		{"GET", "/api/resources/role/records"},
		{"DELETE", "/api/resources/role/records/1"},
		{"GET", "/api/resources/role/form"},
		{"GET", "/api/resources/role/fields/name/options"},
		{"POST", "/api/resources/role/sessions"},
		{"GET", "/api/sessions/s-1"},
		{"PATCH", "/api/sessions/s-1"},
		{"DELETE", "/api/sessions/s-1"},
		{"POST", "/api/sessions/s-1/reset"},
		{"POST", "/api/sessions/s-1/submit"},
		{"POST", "/api/catalog/reload"},
	}
	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := ts.do(t, tc.method, tc.path, nil)
			if w.Code == http.StatusMethodNotAllowed {
				t.Errorf("status = %d, route not registered", w.Code)
			}
			if w.Code == http.StatusNotFound && !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
				t.Errorf("status = 404 without an error envelope, route not registered")
			}
		})
	}
}

func TestNewRouter_bodyLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.deps.Config.Server.MaxBodyBytes = 64
	ts.handler = NewRouter(ts.deps)

	big := map[string]any{"record": map[string]any{"name": strings.Repeat("x", 200)}}
	w := ts.do(t, "POST", "/api/resources/role/sessions", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrPayloadTooLarge {
		t.Errorf("code = %q, want PAYLOAD_TOO_LARGE", code)
	}
}

func TestNewRouter_invalidJSON(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/resources/role/sessions", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORS_preflight(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for preflight")
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}

	called := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called for non-preflight requests")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "corr-123" || w.Header().Get("X-Correlation-Id") != "corr-123" {
		t.Errorf("correlation id = %q, header = %q", seen, w.Header().Get("X-Correlation-Id"))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if len(seen) != 36 {
		t.Errorf("generated id = %q, want a uuid", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestBuildRequestContext(t *testing.T) {
	var rctx *model.RequestContext
	handler := RequestID(BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx = model.RequestContextFrom(r.Context())
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Token abc")
	req.Header.Set("Accept-Language", "sw-KE")
	req.Header.Set("X-Correlation-Id", "c-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rctx == nil {
		t.Fatal("request context not set")
	}
	if rctx.AuthorizationHeader() != "Token abc" || rctx.Locale != "sw-KE" || rctx.CorrelationID != "c-1" {
		t.Errorf("request context = %+v", rctx)
	}
}

func TestHandlerTimeout(t *testing.T) {
	var deadline time.Time
	handler := HandlerTimeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if deadline.IsZero() {
		t.Error("expected a context deadline")
	}
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFrom(r.Context(), zap.NewNop()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/brew", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("request log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusTeapot) {
		t.Errorf("logged status = %v, want 418", got)
	}
	if logs.FilterMessage("inside").Len() != 1 {
		t.Error("handler should log through the request logger")
	}
}
