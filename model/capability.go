package model

import "sort"

// Capability is a CRUD operation a resource supports.
type Capability string

// Resource capabilities.
const (
	CapCreate Capability = "create"
	CapRead   Capability = "read"
	CapUpdate Capability = "update"
	CapDelete Capability = "delete"
)

// CapabilitySet is the set of operations a resource supports, derived from
// the HTTP methods declared on its list and detail endpoints.
type CapabilitySet map[Capability]bool

// Has returns true if the set contains the capability.
func (cs CapabilitySet) Has(c Capability) bool {
	return cs[c]
}

// HasAll returns true if the set contains all given capabilities.
func (cs CapabilitySet) HasAll(caps ...Capability) bool {
	for _, c := range caps {
		if !cs.Has(c) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set contains at least one of the given
// capabilities.
func (cs CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if cs.Has(c) {
			return true
		}
	}
	return false
}

// List returns the granted capabilities in sorted order.
func (cs CapabilitySet) List() []string {
	out := make([]string, 0, len(cs))
	for c, ok := range cs {
		if ok {
			out = append(out, string(c))
		}
	}
	sort.Strings(out)
	return out
}
