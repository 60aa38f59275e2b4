package relation

import (
	"context"
	"errors"
	"sync"

	"github.com/pitabwire/schemadmin/model"
)

// routeCaller answers calls from a path-keyed table and records every
// request in order. Unknown paths return 404.
type routeCaller struct {
	mu     sync.Mutex
	routes map[string]model.CallResult
	errs   map[string]error
	calls  []model.CallRequest
}

func newRouteCaller() *routeCaller {
	return &routeCaller{
		routes: make(map[string]model.CallResult),
		errs:   make(map[string]error),
	}
}

func (c *routeCaller) on(path string, status int, body any) *routeCaller {
	c.routes[path] = model.CallResult{StatusCode: status, Body: body}
	return c
}

func (c *routeCaller) fail(path string) *routeCaller {
	c.errs[path] = errors.New("connection refused")
	return c
}

func (c *routeCaller) Call(_ context.Context, req model.CallRequest) (model.CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if err, ok := c.errs[req.Path]; ok {
		return model.CallResult{}, err
	}
	if res, ok := c.routes[req.Path]; ok {
		return res, nil
	}
	return model.CallResult{StatusCode: 404}, nil
}

func (c *routeCaller) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i] = call.Path
	}
	return out
}

type staticCatalog []model.Endpoint

func (s staticCatalog) Endpoints() []model.Endpoint { return s }
