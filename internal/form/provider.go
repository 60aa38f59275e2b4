package form

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/schemadmin/model"
)

// ResourceSource looks up normalized resources by name.
type ResourceSource interface {
	Resource(name string) (*model.Resource, bool)
}

// RecordLoader fetches one record of a resource.
type RecordLoader interface {
	Get(ctx context.Context, res *model.Resource, id string) (map[string]any, error)
}

// Provider resolves resource names into assembled forms, loading the edited
// record from the backend when one is requested.
type Provider struct {
	resources ResourceSource
	records   RecordLoader
	location  *time.Location
}

// NewProvider creates a Provider. loc may be nil for time.Local.
func NewProvider(resources ResourceSource, records RecordLoader, loc *time.Location) *Provider {
	return &Provider{resources: resources, records: records, location: loc}
}

// Build assembles the form of a resource. An empty recordID yields a create
// form; otherwise the record is fetched and an edit form returned.
func (p *Provider) Build(ctx context.Context, resourceName, recordID string) (*Model, error) {
	res, ok := p.resources.Resource(resourceName)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("resource %q not found", resourceName))
	}

	opts := Options{RecordID: recordID, Location: p.location}
	if recordID == "" {
		if !res.CanCreate {
			return nil, model.NewBadRequestError(fmt.Sprintf("resource %q does not allow creation", resourceName))
		}
		return Assemble(res, nil, opts), nil
	}

	if res.DetailEndpoint == nil {
		return nil, model.NewBadRequestError(fmt.Sprintf("resource %q has no detail endpoint", resourceName))
	}
	record, err := p.records.Get(ctx, res, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = map[string]any{}
	}
	return Assemble(res, record, opts), nil
}

// GetForm is Build rendered as a descriptor.
func (p *Provider) GetForm(ctx context.Context, resourceName, recordID string) (model.FormDescriptor, error) {
	fm, err := p.Build(ctx, resourceName, recordID)
	if err != nil {
		return model.FormDescriptor{}, err
	}
	return fm.Descriptor(), nil
}

// ForRecord assembles the form of res around an already loaded record. A
// nil record yields a create form.
func (p *Provider) ForRecord(res *model.Resource, record map[string]any, recordID string) *Model {
	return Assemble(res, record, Options{RecordID: recordID, Location: p.location})
}
