package model

import "strings"

// Endpoint is one entry of the backend's self-describing endpoint catalog.
// Name carries a "-list" or "-detail" marker, e.g. "role-list".
type Endpoint struct {
	App              string   `json:"app,omitempty"`
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	Methods          []string `json:"methods"`
	Keys             []Field  `json:"keys"`
	AvailableActions []string `json:"available_actions,omitempty"`
}

// IsList returns true if the endpoint identifier carries the list marker.
func (e Endpoint) IsList() bool {
	return strings.Contains(e.Name, "-list")
}

// IsDetail returns true if the endpoint identifier carries the detail marker.
func (e Endpoint) IsDetail() bool {
	return strings.Contains(e.Name, "-detail")
}

// Allows reports whether the endpoint declares the given HTTP method.
// Comparison is case-insensitive.
func (e Endpoint) Allows(method string) bool {
	for _, m := range e.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Resource is the normalized representation of one backend entity type.
type Resource struct {
	Name           string    `json:"name"`
	App            string    `json:"app,omitempty"`
	Fields         []Field   `json:"fields"`
	ListEndpoint   *Endpoint `json:"list_endpoint,omitempty"`
	DetailEndpoint *Endpoint `json:"detail_endpoint,omitempty"`
	CanCreate      bool      `json:"can_create"`
	CanRead        bool      `json:"can_read"`
	CanUpdate      bool      `json:"can_update"`
	CanDelete      bool      `json:"can_delete"`
}

// Field returns the field with the given name.
func (r *Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// WritableFields returns the fields that are not read-only.
func (r *Resource) WritableFields() []Field {
	out := make([]Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		if !f.ReadOnly {
			out = append(out, f)
		}
	}
	return out
}

// Capabilities returns the CRUD capability set derived from the declared
// endpoint methods.
func (r *Resource) Capabilities() CapabilitySet {
	cs := CapabilitySet{}
	if r.CanCreate {
		cs[CapCreate] = true
	}
	if r.CanRead {
		cs[CapRead] = true
	}
	if r.CanUpdate {
		cs[CapUpdate] = true
	}
	if r.CanDelete {
		cs[CapDelete] = true
	}
	return cs
}
