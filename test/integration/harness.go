// Package integration provides a reusable harness for end-to-end testing of
// the schemadmin server. It starts the full HTTP router in front of a mock
// admin backend, using the real HTTP client, catalog loader, relation
// resolver and edit session store.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/pitabwire/schemadmin/internal/client"
	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/internal/records"
	"github.com/pitabwire/schemadmin/internal/relation"
	"github.com/pitabwire/schemadmin/internal/schema"
	"github.com/pitabwire/schemadmin/internal/session"
	"github.com/pitabwire/schemadmin/internal/transport"
)

// TestHarness is a fully wired server with a mock backend.
type TestHarness struct {
	t       *testing.T
	server  *httptest.Server
	backend *MockBackend

	// Internal components exposed for advanced scenarios.
	Config    *config.Config
	Client    *client.Client
	Registry  *schema.Registry
	Loader    *schema.Loader
	Relations *relation.Resolver
	Sessions  *session.Store
	Metrics   *observability.Metrics
	Redis     *miniredis.Miniredis
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	configure   []func(*config.Config)
	redis       bool
	skipLoad    bool
	catalogBody any
}

// WithConfig adjusts the configuration before the server is wired.
func WithConfig(fn func(*config.Config)) HarnessOption {
	return func(c *harnessConfig) {
		c.configure = append(c.configure, fn)
	}
}

// WithRedisCache backs the relation option cache with an in-process Redis.
func WithRedisCache() HarnessOption {
	return func(c *harnessConfig) {
		c.redis = true
	}
}

// WithoutInitialLoad starts the server without loading the catalog.
func WithoutInitialLoad() HarnessOption {
	return func(c *harnessConfig) {
		c.skipLoad = true
	}
}

// WithCatalog replaces the default endpoint catalog served by the backend.
func WithCatalog(body any) HarnessOption {
	return func(c *harnessConfig) {
		c.catalogBody = body
	}
}

// NewTestHarness creates and starts a server. Everything is cleaned up when
// the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{catalogBody: defaultCatalog()}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t, backend: newMockBackend(t)}
	h.backend.On("GET", "/"+schema.DefaultCatalogPath).RespondWith(http.StatusOK, hc.catalogBody)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = h.backend.URL()
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Backend.Retry.MaxAttempts = 1
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Session.Debounce = 0
	cfg.Observability.Metrics.Enabled = true
	for _, fn := range hc.configure {
		fn(cfg)
	}
	h.Config = cfg

	logger := zaptest.NewLogger(t)
	h.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	h.Client = client.New(cfg.Backend, logger.Named("backend"), h.Metrics)
	h.Registry = schema.NewRegistry(nil)
	h.Loader = schema.NewLoader(
		schema.NewCatalogLoader(h.Client, cfg.Schema.CatalogPath, logger.Named("catalog")),
		h.Registry, logger.Named("schema"), h.Metrics,
	)

	var cache relation.OptionCache = relation.NewMemoryOptionCache(cfg.Relations.Cache.TTL, cfg.Relations.Cache.MaxEntries)
	var rdb *redis.Client
	if hc.redis {
		h.Redis = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		cache = relation.NewRedisOptionCache(rdb, time.Minute, logger.Named("option_cache"))
	}
	h.Relations = relation.NewResolver(h.Client, h.Registry,
		relation.WithLookupPath(cfg.Relations.LookupPath),
		relation.WithLogger(logger.Named("relation")),
		relation.WithMetrics(h.Metrics),
		relation.WithCache(cache),
	)

	svc := records.New(h.Client, logger.Named("records"), h.Metrics)
	h.Sessions = session.NewStore(svc, logger.Named("session"), h.Metrics)
	t.Cleanup(func() {
		for _, id := range h.Sessions.IDs() {
			_ = h.Sessions.Close(id)
		}
	})

	if !hc.skipLoad {
		if _, err := h.Loader.Reload(context.Background()); err != nil {
			t.Fatalf("load catalog: %v", err)
		}
	}

	readiness := observability.ReadinessChecks{
		CatalogLoaded: func() bool { return h.Loader.Loaded() && len(h.Registry.Resources()) > 0 },
		Backend: observability.HealthCheckFunc(func(context.Context) error {
			if h.Client.Breaker().State() == client.BreakerOpen {
				return errors.New("backend circuit breaker is open")
			}
			return nil
		}),
	}
	if rdb != nil {
		readiness.OptionCache = observability.HealthCheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger.Named("http"),
		Metrics:   h.Metrics,
		Registry:  h.Registry,
		Catalog:   h.Loader,
		Forms:     form.NewProvider(h.Registry, svc, time.UTC),
		Relations: h.Relations,
		Records:   svc,
		Sessions:  h.Sessions,
		Readiness: readiness,
	})
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// Backend returns the mock admin backend.
func (h *TestHarness) Backend() *MockBackend {
	return h.backend
}

// URL returns the base URL of the server under test.
func (h *TestHarness) URL() string {
	return h.server.URL
}

// Do sends a request with an optional JSON body and optional headers given as
// name, value pairs.
func (h *TestHarness) Do(method, path string, body any, headers ...string) *http.Response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// GET sends a GET request.
func (h *TestHarness) GET(path string, headers ...string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodGet, path, nil, headers...)
}

// POST sends a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, headers ...string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPost, path, body, headers...)
}

// PATCH sends a PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, headers ...string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPatch, path, body, headers...)
}

// AssertJSON checks the status code and decodes the body into dst.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, wantStatus int, dst any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, wantStatus, body)
	}
	if dst == nil {
		return
	}
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode body: %v (%s)", err, body)
	}
}

// ErrorCode decodes an error envelope and returns its code.
func (h *TestHarness) ErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code
}
