package schema

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/observability"
)

// Loader fills a Registry from a Source and refreshes it on demand. A
// failed reload keeps the previously loaded catalog.
type Loader struct {
	source   Source
	registry *Registry
	logger   *zap.Logger
	metrics  *observability.Metrics
	loaded   atomic.Bool
}

// NewLoader creates a Loader that installs into registry.
func NewLoader(source Source, registry *Registry, logger *zap.Logger, metrics *observability.Metrics) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, registry: registry, logger: logger, metrics: metrics}
}

// Reload fetches the endpoints and swaps the registry snapshot. It returns
// the number of resources now available.
func (l *Loader) Reload(ctx context.Context) (int, error) {
	endpoints, err := l.source.Endpoints(ctx)
	if err != nil {
		l.metrics.RecordCatalogReload("error")
		l.logger.Warn("catalog reload failed, keeping previous catalog", zap.Error(err))
		return len(l.registry.Resources()), err
	}

	previous := l.registry.Checksum()
	l.registry.Replace(endpoints)
	count := len(l.registry.Resources())
	l.loaded.Store(true)

	l.metrics.RecordCatalogReload("success")
	l.metrics.SetResourcesLoaded(float64(count))
	l.logger.Info("catalog installed",
		zap.Int("resources", count),
		zap.Bool("changed", previous != l.registry.Checksum()),
	)
	return count, nil
}

// Loaded reports whether at least one reload has succeeded.
func (l *Loader) Loaded() bool {
	return l.loaded.Load()
}
