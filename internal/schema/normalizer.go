// Package schema turns the backend's endpoint catalog into typed resources
// and keeps the current catalog in a lock-free registry.
package schema

import (
	"net/http"
	"strings"

	"github.com/pitabwire/schemadmin/internal/classify"
	"github.com/pitabwire/schemadmin/model"
)

// ResourceName derives the resource name from an endpoint identifier: the
// substring before the first "-".
func ResourceName(identifier string) string {
	if i := strings.Index(identifier, "-"); i >= 0 {
		return identifier[:i]
	}
	return identifier
}

// Normalize groups endpoint descriptors into resources keyed by name.
//
// List endpoints set CanRead (GET) and CanCreate (POST); detail endpoints set
// CanUpdate (PUT or PATCH) and CanDelete (DELETE). Fields come from the list
// endpoint when it declares any, otherwise from the detail endpoint. Every
// adopted field is classified once. Malformed descriptors yield partial
// resources, never an error.
func Normalize(endpoints []model.Endpoint) map[string]*model.Resource {
	resources := make(map[string]*model.Resource)
	fromList := make(map[string]bool)

	for _, ep := range endpoints {
		name := ResourceName(ep.Name)
		res, ok := resources[name]
		if !ok {
			res = &model.Resource{Name: name, App: ep.App}
			resources[name] = res
		}

		ep := ep
		if ep.IsList() {
			res.CanRead = ep.Allows(http.MethodGet)
			res.CanCreate = ep.Allows(http.MethodPost)
			res.ListEndpoint = &ep
			if len(ep.Keys) > 0 && !fromList[name] {
				res.Fields = classify.Fields(ep.Keys)
				fromList[name] = true
			}
		}
		if ep.IsDetail() {
			res.CanUpdate = ep.Allows(http.MethodPut) || ep.Allows(http.MethodPatch)
			res.CanDelete = ep.Allows(http.MethodDelete)
			res.DetailEndpoint = &ep
			if len(res.Fields) == 0 && len(ep.Keys) > 0 {
				res.Fields = classify.Fields(ep.Keys)
			}
		}
	}

	for _, res := range resources {
		res.Fields = dropNameless(res.Fields)
	}
	return resources
}

// dropNameless removes field descriptors without a name.
func dropNameless(fields []model.Field) []model.Field {
	if fields == nil {
		return nil
	}
	out := make([]model.Field, 0, len(fields))
	for _, f := range fields {
		if f.Name != "" {
			out = append(out, f)
		}
	}
	return out
}
