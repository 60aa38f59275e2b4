package relation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/endpoint"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/model"
)

// ProbeState is the state of a Prober.
type ProbeState int

// Prober states.
const (
	NotStarted ProbeState = iota
	Trying
	Succeeded
	Exhausted
)

func (s ProbeState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("ProbeState(%d)", int(s))
}

// errNotAList is returned for a 2xx response that is not array-shaped.
var errNotAList = errors.New("response is not a list")

// Prober walks candidate paths strictly in order. Each path is requested
// only after the previous one failed; the first success ends the walk and no
// later path is ever requested.
type Prober struct {
	patterns []string
	state    ProbeState
	index    int
	items    []map[string]any
}

// NewProber creates a Prober over the given candidate paths.
func NewProber(patterns []string) *Prober {
	return &Prober{patterns: patterns}
}

// State returns the current state and, while Trying or after success, the
// index of the current pattern.
func (p *Prober) State() (ProbeState, int) {
	return p.state, p.index
}

// Next returns the path to request. ok is false once the prober has
// succeeded or run out of patterns.
func (p *Prober) Next() (path string, ok bool) {
	switch p.state {
	case NotStarted:
		if len(p.patterns) == 0 {
			p.state = Exhausted
			return "", false
		}
		p.state = Trying
		p.index = 0
	case Trying:
	default:
		return "", false
	}
	return p.patterns[p.index], true
}

// Succeed records that the current pattern served a list.
func (p *Prober) Succeed(items []map[string]any) {
	if p.state != Trying {
		return
	}
	p.items = items
	p.state = Succeeded
}

// Fail records that the current pattern failed and advances to the next.
func (p *Prober) Fail() {
	if p.state != Trying {
		return
	}
	p.index++
	if p.index >= len(p.patterns) {
		p.state = Exhausted
	}
}

// Result returns the winning path and its items after success.
func (p *Prober) Result() (path string, items []map[string]any, ok bool) {
	if p.state != Succeeded {
		return "", nil, false
	}
	return p.patterns[p.index], p.items, true
}

// Run drives the prober to completion with the given caller. Individual
// failures are logged at debug level and never returned; only context
// cancellation aborts the walk.
func (p *Prober) Run(ctx context.Context, caller model.Caller, logger *zap.Logger, metrics *observability.Metrics) error {
	for {
		path, ok := p.Next()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		items, err := fetchList(ctx, caller, path, nil)
		if err != nil {
			logger.Debug("relation probe failed",
				zap.String("path", path),
				zap.Int("attempt", p.index+1),
				zap.Error(err),
			)
			metrics.RecordRelationProbe("failure")
			p.Fail()
			continue
		}

		metrics.RecordRelationProbe("success")
		p.Succeed(items)
	}
}

// fetchList GETs a normalized path and extracts its items. Transport
// errors, non-2xx responses and non-list bodies are all failures.
func fetchList(ctx context.Context, caller model.Caller, path string, query map[string]string) ([]map[string]any, error) {
	result, err := caller.Call(ctx, model.CallRequest{
		Path:   endpoint.Normalize(path, ""),
		Method: http.MethodGet,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, fmt.Errorf("status %d", result.StatusCode)
	}
	items, ok := ExtractItems(result.Body)
	if !ok {
		return nil, errNotAList
	}
	return items, nil
}
