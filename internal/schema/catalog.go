package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/endpoint"
	"github.com/pitabwire/schemadmin/model"
)

// DefaultCatalogPath is the backend endpoint that describes all others.
const DefaultCatalogPath = "api/applications/categorized-urls/"

const tracerName = "github.com/pitabwire/schemadmin/internal/schema"

// catalogEnvelope is the wire shape of the categorized-urls response.
type catalogEnvelope struct {
	Applications struct {
		Applications map[string][]model.Endpoint `json:"applications"`
	} `json:"applications"`
}

// Source yields the flat endpoint list a registry is built from.
type Source interface {
	Endpoints(ctx context.Context) ([]model.Endpoint, error)
}

// CatalogLoader fetches the endpoint catalog from the backend.
type CatalogLoader struct {
	caller model.Caller
	path   string
	logger *zap.Logger
}

// NewCatalogLoader creates a loader. An empty path uses DefaultCatalogPath.
func NewCatalogLoader(caller model.Caller, path string, logger *zap.Logger) *CatalogLoader {
	if path == "" {
		path = DefaultCatalogPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogLoader{caller: caller, path: path, logger: logger}
}

// Endpoints implements Source.
func (l *CatalogLoader) Endpoints(ctx context.Context) ([]model.Endpoint, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "schema.LoadCatalog")
	defer span.End()

	result, err := l.caller.Call(ctx, model.CallRequest{
		Path:   endpoint.Normalize(l.path, ""),
		Method: http.MethodGet,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog request failed")
		return nil, model.NewFetchFailedError(fmt.Sprintf("loading endpoint catalog: %v", err))
	}
	if !result.OK() {
		span.SetStatus(codes.Error, "catalog request rejected")
		return nil, model.NewFetchFailedError(
			fmt.Sprintf("loading endpoint catalog: backend returned status %d", result.StatusCode),
		)
	}

	endpoints, err := DecodeCatalog(result.Body)
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}

	span.SetAttributes(attribute.Int("schema.endpoints", len(endpoints)))
	l.logger.Info("endpoint catalog loaded", zap.Int("endpoints", len(endpoints)))
	return endpoints, nil
}

// DecodeCatalog converts a decoded categorized-urls body into endpoints
// stamped with their application name. Applications are visited in sorted
// order so the result is deterministic.
func DecodeCatalog(body any) ([]model.Endpoint, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("catalog: re-encode body: %w", err)
	}
	var env catalogEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("catalog: decode body: %w", err)
	}

	apps := make([]string, 0, len(env.Applications.Applications))
	for app := range env.Applications.Applications {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	var endpoints []model.Endpoint
	for _, app := range apps {
		for _, ep := range env.Applications.Applications[app] {
			ep.App = app
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}
