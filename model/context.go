package model

import (
	"context"
	"strings"
)

// RequestContext carries per-request values that are forwarded to the
// backend. The token is opaque; it is passed through unchanged.
type RequestContext struct {
	CorrelationID string
	Token         string
	Locale        string
}

// AuthorizationHeader returns the Authorization header value for backend
// calls, or an empty string when no token is present.
func (rc *RequestContext) AuthorizationHeader() string {
	if rc == nil || rc.Token == "" {
		return ""
	}
	if strings.Contains(rc.Token, " ") {
		return rc.Token
	}
	return "Bearer " + rc.Token
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
