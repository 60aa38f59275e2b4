package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/client"
	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/internal/openapi"
	"github.com/pitabwire/schemadmin/internal/records"
	"github.com/pitabwire/schemadmin/internal/relation"
	"github.com/pitabwire/schemadmin/internal/schema"
	"github.com/pitabwire/schemadmin/internal/session"
	"github.com/pitabwire/schemadmin/internal/transport"
)

// app holds the wired engine shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	backend   *client.Client
	registry  *schema.Registry
	loader    *schema.Loader
	relations *relation.Resolver
	records   *records.Service
	forms     *form.Provider
	sessions  *session.Store
	redis     *redis.Client
}

// buildApp wires the engine from cfg. metrics may be nil.
func buildApp(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics}
	a.backend = client.New(cfg.Backend, logger.Named("backend"), metrics)
	a.registry = schema.NewRegistry(nil)

	var source schema.Source
	switch cfg.Schema.Source {
	case config.SourceOpenAPI:
		source = openapi.NewSource(cfg.Schema.OpenAPIFile, cfg.Schema.DefaultApp)
	default:
		source = schema.NewCatalogLoader(a.backend, cfg.Schema.CatalogPath, logger.Named("catalog"))
	}
	a.loader = schema.NewLoader(source, a.registry, logger.Named("schema"), metrics)

	cache, err := a.optionCache()
	if err != nil {
		return nil, err
	}
	opts := []relation.ResolverOption{
		relation.WithLookupPath(cfg.Relations.LookupPath),
		relation.WithConcurrency(cfg.Relations.Concurrency),
		relation.WithLogger(logger.Named("relation")),
		relation.WithMetrics(metrics),
	}
	if cache != nil {
		opts = append(opts, relation.WithCache(cache))
	}
	a.relations = relation.NewResolver(a.backend, a.registry, opts...)

	a.records = records.New(a.backend, logger.Named("records"), metrics)
	a.forms = form.NewProvider(a.registry, a.records, loc)
	a.sessions = session.NewStore(a.records, logger.Named("session"), metrics)
	return a, nil
}

func (a *app) optionCache() (relation.OptionCache, error) {
	c := a.cfg.Relations.Cache
	switch c.Driver {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Relations.Redis.Addr,
			Password: a.cfg.Relations.Redis.Password,
			DB:       a.cfg.Relations.Redis.DB,
		})
		a.logger.Info("using redis option cache", zap.String("addr", a.cfg.Relations.Redis.Addr))
		return relation.NewRedisOptionCache(a.redis, c.TTL, a.logger.Named("option_cache")), nil
	case config.CacheMemory, "":
		return relation.NewMemoryOptionCache(c.TTL, c.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unsupported option cache driver: %q", c.Driver)
	}
}

// readiness builds the readiness checks of the running service.
func (a *app) readiness() observability.ReadinessChecks {
	checks := observability.ReadinessChecks{
		CatalogLoaded: func() bool { return a.loader.Loaded() && len(a.registry.Resources()) > 0 },
		Backend: observability.HealthCheckFunc(func(context.Context) error {
			if a.backend.Breaker().State() == client.BreakerOpen {
				return errors.New("backend circuit breaker is open")
			}
			return nil
		}),
	}
	if a.redis != nil {
		checks.OptionCache = observability.HealthCheckFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return checks
}

func (a *app) handler() http.Handler {
	return transport.NewRouter(transport.Dependencies{
		Config:    a.cfg,
		Logger:    a.logger.Named("http"),
		Metrics:   a.metrics,
		Registry:  a.registry,
		Catalog:   a.loader,
		Forms:     a.forms,
		Relations: a.relations,
		Records:   a.records,
		Sessions:  a.sessions,
		Readiness: a.readiness(),
	})
}

// runSweeper closes idle edit sessions until ctx is done.
func (a *app) runSweeper(ctx context.Context) {
	idle := a.cfg.Session.IdleTimeout
	if idle <= 0 {
		return
	}
	interval := a.cfg.Session.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.sessions.RunSweeper(ctx, idle, interval)
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
