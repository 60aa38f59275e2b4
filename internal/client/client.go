// Package client implements model.Caller over HTTP against the admin backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/endpoint"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/model"
)

const maxResponseBytes = 10 << 20

// Client sends CallRequests to the backend. Paths are normalized and joined
// to the base URL with a trailing slash, which is what the backend's routes
// expect. Idempotent calls are retried on transport errors and 5xx statuses;
// a circuit breaker guards the backend as a whole.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   config.RetryConfig
	breaker *Breaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates a Client from the backend configuration. logger and metrics
// may be nil.
func New(cfg config.BackendConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := cfg.CircuitBreaker
	breaker := NewBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	breaker.OnStateChange(func(s BreakerState) {
		metrics.SetBackendCircuitBreakerState(float64(s))
		logger.Warn("backend circuit breaker state changed", zap.Stringer("state", s))
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry:   cfg.Retry,
		breaker: breaker,
		logger:  logger,
		metrics: metrics,
	}
}

// Breaker exposes the client's circuit breaker for readiness checks.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Call implements model.Caller.
func (c *Client) Call(ctx context.Context, req model.CallRequest) (model.CallResult, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	reqURL := c.requestURL(req.Path, req.Query)

	ctx, span := observability.StartSpan(ctx, "backend "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", reqURL),
	)

	var (
		body        []byte
		contentType string
	)
	if req.Body != nil {
		var err error
		body, contentType, err = req.Body.Encode()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode body")
			return model.CallResult{}, fmt.Errorf("client: encode body: %w", err)
		}
	}

	result, err := c.executeWithRetry(ctx, method, reqURL, c.headers(ctx, contentType), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.CallResult{}, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", result.StatusCode))
	if !result.OK() {
		span.SetStatus(codes.Error, http.StatusText(result.StatusCode))
	}
	return result, nil
}

func (c *Client) requestURL(path string, query map[string]string) string {
	u := endpoint.Join(c.baseURL, endpoint.Normalize(path, ""), true)
	if len(query) == 0 {
		return u
	}
	params := url.Values{}
	for k, v := range query {
		params.Set(k, v)
	}
	return u + "?" + params.Encode()
}

func (c *Client) headers(ctx context.Context, contentType string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	rctx := model.RequestContextFrom(ctx)
	auth := rctx.AuthorizationHeader()
	if auth == "" && c.token != "" {
		auth = (&model.RequestContext{Token: c.token}).AuthorizationHeader()
	}
	if auth != "" {
		h.Set("Authorization", sanitizeHeader(auth))
	}
	if rctx != nil {
		if rctx.CorrelationID != "" {
			h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
		if rctx.Locale != "" {
			h.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}
	observability.InjectTraceHeaders(ctx, h)
	return h
}

func (c *Client) executeWithRetry(ctx context.Context, method, reqURL string, headers http.Header, body []byte) (model.CallResult, error) {
	attempts := c.retry.MaxAttempts
	if attempts < 1 || !idempotent(method) {
		attempts = 1
	}

	var (
		lastErr    error
		lastResult model.CallResult
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if c.breaker.State() == BreakerOpen {
				break
			}
			c.metrics.RecordBackendRetry()
			select {
			case <-ctx.Done():
				return model.CallResult{}, ctx.Err()
			case <-time.After(backoff(c.retry, attempt)):
			}
		}

		result, err := c.executeOnce(ctx, method, reqURL, headers, body)
		if err != nil {
			lastErr = err
			if !retryableError(err) {
				return model.CallResult{}, err
			}
			c.logger.Debug("retrying backend call after error",
				zap.String("method", method),
				zap.String("url", reqURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if retryableStatus(result.StatusCode) && attempt < attempts-1 {
			lastErr, lastResult = nil, result
			c.logger.Debug("retrying backend call after status",
				zap.String("method", method),
				zap.String("url", reqURL),
				zap.Int("attempt", attempt+1),
				zap.Int("status", result.StatusCode),
			)
			continue
		}
		return result, nil
	}
	if lastErr != nil {
		return model.CallResult{}, lastErr
	}
	return lastResult, nil
}

func (c *Client) executeOnce(ctx context.Context, method, reqURL string, headers http.Header, body []byte) (model.CallResult, error) {
	if err := c.breaker.Allow(); err != nil {
		return model.CallResult{}, model.NewBackendUnavailableError()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return model.CallResult{}, fmt.Errorf("client: build request: %w", err)
	}
	req.Header = headers.Clone()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Failure()
		c.metrics.RecordBackendRequest(method, 0, time.Since(start))
		switch {
		case ctx.Err() != nil || isTimeout(err):
			return model.CallResult{}, model.NewBackendTimeoutError()
		case isConnectionError(err):
			return model.CallResult{}, model.NewBackendUnavailableError()
		}
		return model.CallResult{}, fmt.Errorf("client: %s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		c.breaker.Failure()
		return model.CallResult{}, fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		c.breaker.Failure()
	} else {
		c.breaker.Success()
	}

	result := model.CallResult{
		StatusCode: resp.StatusCode,
		Headers:    responseHeaders(resp),
	}
	if len(data) > 0 {
		var parsed any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&parsed); err == nil {
			result.Body = normalizeNumbers(parsed)
		}
	}
	return result, nil
}

// normalizeNumbers turns json.Number values into float64, keeping integers
// that do not fit a float64 mantissa as their literal string.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil && (i > 1<<53 || i < -(1<<53)) {
			return t.String()
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumbers(t[k])
		}
		return t
	}
	return v
}

func responseHeaders(resp *http.Response) map[string]string {
	headers := make(map[string]string)
	for _, key := range []string{"Content-Type", "X-Correlation-Id", "X-Request-Id", "Retry-After"} {
		if v := resp.Header.Get(key); v != "" {
			headers[key] = v
		}
	}
	return headers
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableError(err error) bool {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code == model.ErrBackendUnavailable
	}
	return !errors.Is(err, context.Canceled)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	delay := cfg.BackoffInitial
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	limit := cfg.BackoffMax
	if limit <= 0 {
		limit = 2 * time.Second
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * mult)
		if delay >= limit {
			return limit
		}
	}
	return delay
}
