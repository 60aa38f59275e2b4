package schema

import (
	"sync"
	"testing"

	"github.com/pitabwire/schemadmin/model"
)

func TestRegistry_Resource(t *testing.T) {
	r := NewRegistry(roleEndpoints())

	res, ok := r.Resource("role")
	if !ok {
		t.Fatal("Resource(role) not found")
	}
	if res.Name != "role" {
		t.Errorf("Name = %q, want role", res.Name)
	}
	if _, ok := r.Resource("unknown"); ok {
		t.Error("Resource(unknown) should not be found")
	}
}

func TestRegistry_ResourcesSorted(t *testing.T) {
	eps := append(roleEndpoints(),
		model.Endpoint{Name: "zone-list", Methods: []string{"GET"}},
		model.Endpoint{Name: "article-list", Methods: []string{"GET"}},
	)
	r := NewRegistry(eps)

	got := r.Resources()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Name != "article" || got[1].Name != "role" || got[2].Name != "zone" {
		t.Errorf("order = %s, %s, %s", got[0].Name, got[1].Name, got[2].Name)
	}
	if len(r.Endpoints()) != 4 {
		t.Errorf("Endpoints() = %d, want 4", len(r.Endpoints()))
	}
}

func TestRegistry_Checksum(t *testing.T) {
	a := NewRegistry(roleEndpoints())

	reversed := roleEndpoints()
	reversed[0], reversed[1] = reversed[1], reversed[0]
	b := NewRegistry(reversed)

	if a.Checksum() == "" {
		t.Fatal("Checksum() is empty")
	}
	if a.Checksum() != b.Checksum() {
		t.Error("checksum should not depend on endpoint order")
	}

	c := NewRegistry(roleEndpoints()[:1])
	if a.Checksum() == c.Checksum() {
		t.Error("different catalogs should have different checksums")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(roleEndpoints())
	r.Replace([]model.Endpoint{{Name: "tag-list", Methods: []string{"GET"}}})

	if _, ok := r.Resource("role"); ok {
		t.Error("role should be gone after Replace")
	}
	if _, ok := r.Resource("tag"); !ok {
		t.Error("tag should exist after Replace")
	}
}

func TestRegistry_concurrentAccess(t *testing.T) {
	r := NewRegistry(roleEndpoints())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Resource("role")
			r.Resources()
		}()
		go func() {
			defer wg.Done()
			r.Replace(roleEndpoints())
		}()
	}
	wg.Wait()

	if _, ok := r.Resource("role"); !ok {
		t.Error("role should exist after concurrent access")
	}
}
