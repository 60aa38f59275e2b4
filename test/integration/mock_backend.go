package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockBackend is an HTTP test server that plays the admin backend. Routes are
// keyed by "METHOD /path/" and answer with queued responses; every request is
// recorded for later assertion.
type MockBackend struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]*route
	received []*RecordedRequest
}

// RecordedRequest captures one request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	Headers     http.Header
	ContentType string
	RawBody     []byte
	ReceivedAt  time.Time
}

// JSON decodes the recorded body as a JSON object.
func (r *RecordedRequest) JSON(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(r.RawBody, &out); err != nil {
		t.Fatalf("decode recorded body: %v (%q)", err, r.RawBody)
	}
	return out
}

type route struct {
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// RouteMock configures the responses of one route.
type RouteMock struct {
	backend *MockBackend
	key     string
}

func newMockBackend(t *testing.T) *MockBackend {
	t.Helper()
	mb := &MockBackend{t: t, routes: make(map[string]*route)}
	mb.server = httptest.NewServer(http.HandlerFunc(mb.serve))
	t.Cleanup(mb.server.Close)
	return mb
}

// URL returns the base URL of the mock backend.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// On returns a builder for the route method path.
func (mb *MockBackend) On(method, path string) *RouteMock {
	return &RouteMock{backend: mb, key: strings.ToUpper(method) + " " + path}
}

// RespondWith queues a response. The last queued response repeats once the
// queue is exhausted.
func (rm *RouteMock) RespondWith(status int, body any) *RouteMock {
	rm.backend.add(rm.key, &mockResponse{status: status, body: body})
	return rm
}

// RespondWithDelay queues a delayed response.
func (rm *RouteMock) RespondWithDelay(delay time.Duration, status int, body any) *RouteMock {
	rm.backend.add(rm.key, &mockResponse{status: status, body: body, delay: delay})
	return rm
}

// RespondWithConnectionError queues a response that drops the connection.
func (rm *RouteMock) RespondWithConnectionError() *RouteMock {
	rm.backend.add(rm.key, &mockResponse{connError: true})
	return rm
}

// Reset clears the queued responses of the route.
func (rm *RouteMock) Reset() {
	rm.backend.mu.Lock()
	defer rm.backend.mu.Unlock()
	delete(rm.backend.routes, rm.key)
}

func (mb *MockBackend) add(key string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	r, ok := mb.routes[key]
	if !ok {
		r = &route{}
		mb.routes[key] = r
	}
	r.responses = append(r.responses, resp)
}

func (mb *MockBackend) next(key string) *mockResponse {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	r, ok := mb.routes[key]
	if !ok || len(r.responses) == 0 {
		return nil
	}
	resp := r.responses[r.current]
	if r.current < len(r.responses)-1 {
		r.current++
	}
	return resp
}

func (mb *MockBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	mb.mu.Lock()
	mb.received = append(mb.received, &RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     r.Header.Clone(),
		ContentType: r.Header.Get("Content-Type"),
		RawBody:     body,
		ReceivedAt:  time.Now(),
	})
	mb.mu.Unlock()

	resp := mb.next(r.Method + " " + r.URL.Path)
	if resp == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Not found."}`))
		return
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}
	if resp.connError {
		hj, ok := w.(http.Hijacker)
		if !ok {
			mb.t.Error("mock backend: response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	if resp.body != nil {
		_ = json.NewEncoder(w).Encode(resp.body)
	}
}

// Requests returns the recorded requests matching method and path.
func (mb *MockBackend) Requests(method, path string) []*RecordedRequest {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []*RecordedRequest
	for _, r := range mb.received {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// LastRequest returns the most recent request matching method and path.
func (mb *MockBackend) LastRequest(method, path string) *RecordedRequest {
	mb.t.Helper()
	reqs := mb.Requests(method, path)
	if len(reqs) == 0 {
		mb.t.Fatalf("mock backend: no %s %s request received", method, path)
	}
	return reqs[len(reqs)-1]
}
