// Package openapi derives endpoint catalog entries from an OpenAPI 3
// document, for backends that publish OpenAPI instead of the categorized-urls
// catalog.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/schemadmin/model"
)

// Vendor extensions read from path items and schema properties.
const (
	extResource       = "x-resource"
	extApp            = "x-app"
	extRelatedModel   = "x-related-model"
	extRelationType   = "x-relation-type"
	extLimitChoicesTo = "x-limit-choices-to"
)

// Source yields endpoints from an OpenAPI document on disk.
type Source struct {
	path string
	app  string
}

// NewSource creates a Source for the document at path. app is used for
// paths that carry neither an x-app extension nor a tag.
func NewSource(path, app string) *Source {
	return &Source{path: path, app: app}
}

// Endpoints loads the document and derives its endpoints.
func (s *Source) Endpoints(ctx context.Context) ([]model.Endpoint, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	loader.Context = ctx

	doc, err := loader.LoadFromFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading %s: %w", s.path, err)
	}
	return derive(ctx, doc, s.app)
}

// LoadData parses an in-memory document and derives its endpoints.
func LoadData(ctx context.Context, data []byte, app string) ([]model.Endpoint, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: parsing document: %w", err)
	}
	return derive(ctx, doc, app)
}

func derive(ctx context.Context, doc *openapi3.T, defaultApp string) ([]model.Endpoint, error) {
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validating document: %w", err)
	}
	if doc.Paths == nil {
		return nil, nil
	}

	paths := doc.Paths.InMatchingOrder()
	sort.Strings(paths)

	var endpoints []model.Endpoint
	for _, p := range paths {
		item := doc.Paths.Value(p)
		if item == nil {
			continue
		}
		ep, ok := endpointFor(p, item, defaultApp)
		if ok {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}

// endpointFor converts one path item. Paths ending in a template parameter
// are detail endpoints; all others are list endpoints.
func endpointFor(path string, item *openapi3.PathItem, defaultApp string) (model.Endpoint, bool) {
	ops := item.Operations()
	if len(ops) == 0 {
		return model.Endpoint{}, false
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	detail := len(segments) > 0 && isParam(segments[len(segments)-1])
	if detail {
		segments[len(segments)-1] = "<pk>"
	}

	name := stringExt(item.Extensions, extResource)
	if name == "" {
		name = resourceFromSegments(segments)
	}
	if name == "" {
		return model.Endpoint{}, false
	}

	methods := make([]string, 0, len(ops))
	for m := range ops {
		methods = append(methods, strings.ToUpper(m))
	}
	sort.Strings(methods)

	marker := "-list"
	if detail {
		marker = "-detail"
	}

	return model.Endpoint{
		App:     appFor(item, ops, defaultApp),
		Name:    name + marker,
		Path:    strings.Join(segments, "/") + "/",
		Methods: methods,
		Keys:    fieldsFor(ops),
	}, true
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

// resourceFromSegments takes the last static segment and drops a plural "s".
func resourceFromSegments(segments []string) string {
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		if s == "" || s == "<pk>" || isParam(s) {
			continue
		}
		s = strings.ReplaceAll(s, "-", "_")
		if len(s) > 1 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
			s = s[:len(s)-1]
		}
		return s
	}
	return ""
}

func appFor(item *openapi3.PathItem, ops map[string]*openapi3.Operation, defaultApp string) string {
	if app := stringExt(item.Extensions, extApp); app != "" {
		return app
	}
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		if op := ops[m]; op != nil && len(op.Tags) > 0 {
			return op.Tags[0]
		}
	}
	return defaultApp
}

// fieldsFor reads fields from the write schema of the path, falling back to
// the successful GET response.
func fieldsFor(ops map[string]*openapi3.Operation) []model.Field {
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		op := ops[m]
		if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
			continue
		}
		if schema := bodySchema(op.RequestBody.Value.Content); schema != nil {
			return schemaFields(schema)
		}
	}

	if op := ops[http.MethodGet]; op != nil && op.Responses != nil {
		for _, code := range []int{http.StatusOK, http.StatusCreated} {
			resp := op.Responses.Status(code)
			if resp == nil || resp.Value == nil {
				continue
			}
			if schema := recordSchema(bodySchema(resp.Value.Content)); schema != nil {
				return schemaFields(schema)
			}
		}
	}
	return nil
}

func bodySchema(content openapi3.Content) *openapi3.Schema {
	for _, ct := range []string{"application/json", "multipart/form-data"} {
		mt := content.Get(ct)
		if mt != nil && mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

// recordSchema unwraps array and paginated {results: [...]} response
// schemas to the record schema.
func recordSchema(s *openapi3.Schema) *openapi3.Schema {
	if s == nil {
		return nil
	}
	if s.Type.Is(openapi3.TypeArray) && s.Items != nil {
		return s.Items.Value
	}
	if results, ok := s.Properties["results"]; ok && results.Value != nil {
		if results.Value.Type.Is(openapi3.TypeArray) && results.Value.Items != nil {
			return results.Value.Items.Value
		}
	}
	return s
}

func schemaFields(s *openapi3.Schema) []model.Field {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	fields := make([]model.Field, 0, len(names))
	for _, name := range names {
		ref := s.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		fields = append(fields, propertyField(name, ref.Value, required[name]))
	}
	return fields
}

func propertyField(name string, p *openapi3.Schema, required bool) model.Field {
	f := model.Field{
		Name:           name,
		Type:           fieldType(p),
		Label:          p.Title,
		Required:       required,
		ReadOnly:       p.ReadOnly,
		Default:        p.Default,
		HelpText:       p.Description,
		RelatedModel:   stringExt(p.Extensions, extRelatedModel),
		RelationType:   stringExt(p.Extensions, extRelationType),
		LimitChoicesTo: stringExt(p.Extensions, extLimitChoicesTo),
	}
	for _, v := range p.Enum {
		f.Choices = append(f.Choices, model.Choice{Value: v, Label: fmt.Sprint(v)})
	}
	if f.RelatedModel != "" || f.LimitChoicesTo != "" {
		// The scalar type of a relation column is the key type, not the
		// field's kind.
		f.Type = ""
		if f.RelationType == "" && p.Type.Is(openapi3.TypeArray) {
			f.RelationType = "ManyToManyField"
		}
	}
	return f
}

// fieldType maps JSON-schema type and format onto the backend's declared
// type vocabulary.
func fieldType(p *openapi3.Schema) string {
	switch {
	case p.Type.Is(openapi3.TypeString):
		switch p.Format {
		case "date":
			return "date"
		case "date-time":
			return "datetime"
		case "time":
			return "time"
		case "binary":
			return "file"
		case "email":
			return "email"
		case "uri", "url":
			return "url"
		}
		return "string"
	case p.Type.Is(openapi3.TypeInteger):
		if p.Format == "int64" {
			return "bigint"
		}
		return "integer"
	case p.Type.Is(openapi3.TypeNumber):
		return "decimal"
	case p.Type.Is(openapi3.TypeBoolean):
		return "boolean"
	}
	return ""
}

func stringExt(ext map[string]any, key string) string {
	if v, ok := ext[key].(string); ok {
		return v
	}
	return ""
}
