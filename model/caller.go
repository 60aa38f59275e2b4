package model

import "context"

// Caller is the generic HTTP call interface the engine consumes. Paths are
// relative to the backend base URL and are normalized by the caller side
// before they reach an implementation.
type Caller interface {
	Call(ctx context.Context, req CallRequest) (CallResult, error)
}

// Body is an encoded outgoing request body.
type Body interface {
	// Encode returns the serialized body and its Content-Type header value.
	Encode() (data []byte, contentType string, err error)
}

// CallRequest is a single backend request.
type CallRequest struct {
	Path   string            `json:"path"`
	Method string            `json:"method"`
	Query  map[string]string `json:"query,omitempty"`
	Body   Body              `json:"-"`
}

// CallResult is the backend response. Body holds the decoded JSON value, or
// nil when the response carried no JSON.
type CallResult struct {
	StatusCode int               `json:"status_code"`
	Body       any               `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// OK reports whether the status code is in the 2xx range.
func (r CallResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
