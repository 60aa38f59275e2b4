package schema

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/schemadmin/model"
)

// snapshot is an immutable view of one loaded catalog.
type snapshot struct {
	endpoints []model.Endpoint
	resources map[string]*model.Resource
	names     []string
	checksum  string
}

// Registry is a read-optimized, thread-safe store of the endpoint catalog
// and the resources normalized from it. Reads never block; Replace swaps
// the whole snapshot atomically.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given endpoints.
func NewRegistry(endpoints []model.Endpoint) *Registry {
	r := &Registry{}
	r.Replace(endpoints)
	return r
}

// Replace builds a new snapshot from the endpoints and installs it.
func (r *Registry) Replace(endpoints []model.Endpoint) {
	eps := make([]model.Endpoint, len(endpoints))
	copy(eps, endpoints)

	resources := Normalize(eps)
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)

	r.snap.Store(&snapshot{
		endpoints: eps,
		resources: resources,
		names:     names,
		checksum:  checksum(eps),
	})
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Resource returns the resource with the given name.
func (r *Registry) Resource(name string) (*model.Resource, bool) {
	res, ok := r.current().resources[name]
	return res, ok
}

// Resources returns all resources sorted by name.
func (r *Registry) Resources() []*model.Resource {
	s := r.current()
	out := make([]*model.Resource, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.resources[name])
	}
	return out
}

// Endpoints returns the raw endpoint catalog the snapshot was built from.
func (r *Registry) Endpoints() []model.Endpoint {
	return r.current().endpoints
}

// Checksum returns a digest of the loaded catalog. Two loads of the same
// catalog produce the same checksum.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

func checksum(endpoints []model.Endpoint) string {
	parts := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		b, err := json.Marshal(ep)
		if err != nil {
			continue
		}
		parts = append(parts, string(b))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, "\n"))))
}
