package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveReady(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/ready", nil))

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version, Commit = "1.2.3", "abc1234"
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleReady_catalogLoaded(t *testing.T) {
	code, resp := serveReady(t, ReadinessChecks{CatalogLoaded: func() bool { return true }})

	if code != http.StatusOK || resp.Status != "ready" {
		t.Errorf("status = %d %q, want 200 ready", code, resp.Status)
	}
	if len(resp.Checks) != 1 || resp.Checks["catalog"].Status != "ok" {
		t.Errorf("checks = %+v", resp.Checks)
	}
}

func TestHandleReady_catalogMissing(t *testing.T) {
	for name, checks := range map[string]ReadinessChecks{
		"empty":   {CatalogLoaded: func() bool { return false }},
		"not set": {},
	} {
		t.Run(name, func(t *testing.T) {
			code, resp := serveReady(t, checks)
			if code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
				t.Errorf("status = %d %q, want 503 not_ready", code, resp.Status)
			}
			if resp.Checks["catalog"].Error == "" {
				t.Error("catalog check should carry an error")
			}
		})
	}
}

func TestHandleReady_optionalChecks(t *testing.T) {
	ok := HealthCheckFunc(func(context.Context) error { return nil })
	down := HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") })

	code, resp := serveReady(t, ReadinessChecks{
		CatalogLoaded: func() bool { return true },
		Backend:       ok,
		OptionCache:   down,
	})

	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if resp.Checks["backend"].Status != "ok" {
		t.Errorf("backend = %+v", resp.Checks["backend"])
	}
	if c := resp.Checks["option_cache"]; c.Status != "error" || c.Error != "connection refused" {
		t.Errorf("option_cache = %+v", c)
	}
}

func TestRunCheck_timesOut(t *testing.T) {
	slow := HealthCheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := runCheck(ctx, slow); got.Status != "error" {
		t.Errorf("result = %+v, want error", got)
	}
}
