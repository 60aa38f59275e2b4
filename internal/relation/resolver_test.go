package relation

import (
	"context"
	"testing"
	"time"

	"github.com/pitabwire/schemadmin/internal/classify"
	"github.com/pitabwire/schemadmin/model"
)

func classified(f model.Field) model.Field {
	f.Kind = classify.Classify(f)
	return f
}

func TestResolve_probingStopsAtFirstSuccess(t *testing.T) {
	caller := newRouteCaller().
		on("accounts/roles", 200, map[string]any{"results": []any{map[string]any{"id": 1.0, "name": "Admin"}}}).
		on("api/accounts/roles", 200, []any{})

	r := NewResolver(caller, nil)
	res, err := r.Resolve(context.Background(), classified(model.Field{Name: "role", RelatedModel: "accounts.role"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(res.Options) != 1 || res.Options[0].ID != 1.0 || res.Options[0].Display != "Admin" {
		t.Errorf("Options = %+v, want [{1 Admin}]", res.Options)
	}
	if res.Source != SourceProbe || res.Endpoint != "accounts/roles/" {
		t.Errorf("Source = %q Endpoint = %q", res.Source, res.Endpoint)
	}
	for _, p := range caller.paths() {
		if p == "api/accounts/roles" {
			t.Fatal("4th pattern was requested after the 3rd succeeded")
		}
	}
	if n := len(caller.paths()); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestResolve_exhaustedYieldsWarning(t *testing.T) {
	caller := newRouteCaller()
	r := NewResolver(caller, nil)

	res, err := r.Resolve(context.Background(), classified(model.Field{Name: "country_id"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.Options) != 0 || res.Options == nil {
		t.Errorf("Options = %#v, want empty non-nil", res.Options)
	}
	if res.Warning == "" || res.Source != SourceNone {
		t.Errorf("Source = %q Warning = %q", res.Source, res.Warning)
	}
	if n := len(caller.paths()); n != 4 {
		t.Errorf("requests = %d, want 4", n)
	}
}

func TestResolve_catalogEndpointSkipsProbing(t *testing.T) {
	caller := newRouteCaller().
		on("api/catalog/categories", 200, []any{map[string]any{"id": 3.0, "title": "Books"}})
	catalog := staticCatalog{
		{Name: "category-detail", Path: "api/catalog/categories/<pk>/"},
		{Name: "category-list", Path: "api/catalog/categories/"},
	}

	r := NewResolver(caller, catalog)
	res, err := r.Resolve(context.Background(), classified(model.Field{Name: "category_id", RelatedModel: "catalog.category"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != SourceCatalog || res.Endpoint != "api/catalog/categories/" {
		t.Errorf("Source = %q Endpoint = %q", res.Source, res.Endpoint)
	}
	if len(res.Options) != 1 || res.Options[0].Display != "Books" {
		t.Errorf("Options = %+v", res.Options)
	}
	if got := caller.paths(); len(got) != 1 {
		t.Errorf("requests = %v, want exactly the catalog endpoint", got)
	}
}

func TestResolve_catalogFailureFallsBackToProbing(t *testing.T) {
	caller := newRouteCaller().
		on("api/catalog/categories", 500, nil).
		on("catalog/category", 200, []any{map[string]any{"id": 1.0, "name": "Toys"}})
	catalog := staticCatalog{{Name: "category-list", Path: "api/catalog/categories/"}}

	res, err := NewResolver(caller, catalog).Resolve(context.Background(),
		classified(model.Field{Name: "category_id", RelatedModel: "catalog.category"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != SourceProbe || res.Endpoint != "catalog/category/" {
		t.Errorf("Source = %q Endpoint = %q", res.Source, res.Endpoint)
	}
}

func TestResolve_lookupField(t *testing.T) {
	caller := newRouteCaller().
		on("lookups", 200, map[string]any{"results": []any{
			map[string]any{"id": 10.0, "name": "Active"},
			map[string]any{"id": 11.0, "name": "Retired"},
		}})

	f := classified(model.Field{
		Name:           "state",
		RelatedModel:   classify.LookupModel,
		LimitChoicesTo: `{'lookup_name': 'role_status'}`,
	})
	if f.Kind != model.KindLookup {
		t.Fatalf("Kind = %q, want lookup", f.Kind)
	}
	res, err := NewResolver(caller, nil).Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != SourceLookup || len(res.Options) != 2 {
		t.Fatalf("Resolution = %+v", res)
	}
	if got := caller.calls[0].Query["name"]; got != "role_status" {
		t.Errorf("lookup name = %q, want role_status", got)
	}
}

func TestResolve_lookupNameFallsBackToFieldName(t *testing.T) {
	caller := newRouteCaller().on("lookups", 200, []any{})
	f := classified(model.Field{Name: "marital_status_id", LimitChoicesTo: "lookup"})
	if f.Kind != model.KindLookup {
		t.Fatalf("Kind = %q, want lookup", f.Kind)
	}

	if _, err := NewResolver(caller, nil).Resolve(context.Background(), f); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := caller.calls[0].Query["name"]; got != "Marital Status" {
		t.Errorf("lookup name = %q, want Marital Status", got)
	}
}

func TestResolve_choiceField(t *testing.T) {
	caller := newRouteCaller()
	f := classified(model.Field{Name: "level", Choices: []model.Choice{{Value: "j", Label: "Junior"}}})

	res, err := NewResolver(caller, nil).Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != SourceChoices || len(res.Options) != 1 {
		t.Errorf("Resolution = %+v", res)
	}
	if len(caller.paths()) != 0 {
		t.Error("choice fields must not hit the backend")
	}
}

func TestResolve_cacheSkipsBackend(t *testing.T) {
	caller := newRouteCaller().on("tag", 200, []any{map[string]any{"id": 1.0, "name": "go"}})
	r := NewResolver(caller, nil, WithCache(NewMemoryOptionCache(time.Minute, 10)))
	f := classified(model.Field{Name: "tag", RelatedModel: "tag"})

	first, err := r.Resolve(context.Background(), f)
	if err != nil || first.Cached {
		t.Fatalf("first Resolve() = %+v, %v", first, err)
	}
	second, err := r.Resolve(context.Background(), f)
	if err != nil || !second.Cached {
		t.Fatalf("second Resolve() = %+v, %v", second, err)
	}
	if n := len(caller.paths()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}

	r.Purge(context.Background())
	if _, err := r.Resolve(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	if n := len(caller.paths()); n != 2 {
		t.Errorf("requests after purge = %d, want 2", n)
	}
}

func TestResolve_exhaustionNotCached(t *testing.T) {
	caller := newRouteCaller()
	cache := NewMemoryOptionCache(time.Minute, 10)
	r := NewResolver(caller, nil, WithCache(cache))

	if _, err := r.Resolve(context.Background(), classified(model.Field{Name: "zone_id"})); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", cache.Len())
	}
}

func TestResolveAll(t *testing.T) {
	caller := newRouteCaller().
		on("catalog/category", 200, []any{map[string]any{"id": 1.0, "name": "Books"}}).
		on("catalog/tag", 200, []any{map[string]any{"id": 2.0, "name": "new"}})

	fields := []model.Field{
		classified(model.Field{Name: "title", Type: "text"}),
		classified(model.Field{Name: "category_id", RelatedModel: "catalog.category"}),
		classified(model.Field{Name: "tags", RelatedModel: "catalog.tag"}),
		classified(model.Field{Name: "level", Choices: []model.Choice{{Value: 1.0, Label: "One"}}}),
	}

	got, err := NewResolver(caller, nil, WithConcurrency(2)).ResolveAll(context.Background(), fields)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("resolved %d fields, want 3: %v", len(got), got)
	}
	if _, ok := got["title"]; ok {
		t.Error("text field should not be resolved")
	}
	if got["tags"].Options[0].Display != "new" {
		t.Errorf("tags = %+v", got["tags"])
	}
}

func TestResolveAll_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fields := []model.Field{classified(model.Field{Name: "category_id"})}
	if _, err := NewResolver(newRouteCaller(), nil).ResolveAll(ctx, fields); err == nil {
		t.Error("expected context error")
	}
}
