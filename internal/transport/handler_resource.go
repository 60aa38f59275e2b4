package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/internal/relation"
	"github.com/pitabwire/schemadmin/model"
)

var capabilityOrder = []model.Capability{model.CapCreate, model.CapRead, model.CapUpdate, model.CapDelete}

type resourceHandlers struct {
	deps Dependencies
}

// formResponse is a form descriptor, optionally with the resolved options
// of its relation and choice fields.
type formResponse struct {
	model.FormDescriptor
	Options map[string]relation.Resolution `json:"options,omitempty"`
}

func describe(res *model.Resource, withFields bool) model.ResourceDescriptor {
	desc := model.ResourceDescriptor{
		Name:         res.Name,
		App:          res.App,
		Capabilities: []string{},
	}
	if res.ListEndpoint != nil {
		desc.ListEndpoint = res.ListEndpoint.Path
	}
	if res.DetailEndpoint != nil {
		desc.DetailEndpoint = res.DetailEndpoint.Path
	}
	caps := res.Capabilities()
	for _, c := range capabilityOrder {
		if caps.Has(c) {
			desc.Capabilities = append(desc.Capabilities, string(c))
		}
	}
	if withFields {
		desc.Fields = make([]model.FieldDescriptor, 0, len(res.Fields))
		for _, f := range res.Fields {
			desc.Fields = append(desc.Fields, form.FieldDescriptor(f))
		}
	}
	return desc
}

// resource resolves the {resource} URL parameter, writing a 404 when unknown.
func (h *resourceHandlers) resource(w http.ResponseWriter, r *http.Request) (*model.Resource, bool) {
	name := chi.URLParam(r, "resource")
	res, ok := h.deps.Registry.Resource(name)
	if !ok {
		WriteNotFound(w, "resource "+name+" not found")
		return nil, false
	}
	return res, true
}

func (h *resourceHandlers) list(w http.ResponseWriter, _ *http.Request) {
	all := h.deps.Registry.Resources()
	out := make([]model.ResourceDescriptor, 0, len(all))
	for _, res := range all {
		out = append(out, describe(res, false))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *resourceHandlers) get(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, describe(res, true))
}

func (h *resourceHandlers) listRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	items, err := h.deps.Records.List(r.Context(), res)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, model.ListResponse{Items: items, Count: len(items)})
}

func (h *resourceHandlers) deleteRecord(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	if err := h.deps.Records.Delete(r.Context(), res, chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *resourceHandlers) form(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	fm, err := h.deps.Forms.Build(r.Context(), name, r.URL.Query().Get("id"))
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := formResponse{FormDescriptor: fm.Descriptor()}
	if r.URL.Query().Get("options") == "true" {
		fields := make([]model.Field, 0, len(fm.Fields))
		for _, f := range fm.Fields {
			fields = append(fields, f.Field)
		}
		resp.Options, err = h.deps.Relations.ResolveAll(r.Context(), fields)
		if err != nil {
			WriteError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *resourceHandlers) options(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "field")
	f, ok := res.Field(name)
	if !ok {
		WriteNotFound(w, "field "+name+" not found on "+res.Name)
		return
	}

	resolution, err := h.deps.Relations.Resolve(r.Context(), f)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, model.OptionsResponse{
		Field:    f.Name,
		Options:  resolution.Options,
		Source:   resolution.Source,
		Endpoint: resolution.Endpoint,
		Warning:  resolution.Warning,
	})
}

func (h *resourceHandlers) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	if h.deps.Catalog == nil {
		WriteError(w, model.NewBadRequestError("catalog reload is not available for this source"))
		return
	}
	count, err := h.deps.Catalog.Reload(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if h.deps.Relations != nil {
		h.deps.Relations.Purge(r.Context())
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"resources": count,
		"checksum":  h.deps.Registry.Checksum(),
	})
}
