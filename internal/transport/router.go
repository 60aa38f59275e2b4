package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/internal/records"
	"github.com/pitabwire/schemadmin/internal/relation"
	"github.com/pitabwire/schemadmin/internal/schema"
	"github.com/pitabwire/schemadmin/internal/session"
)

// CatalogReloader refreshes the endpoint catalog.
type CatalogReloader interface {
	Reload(ctx context.Context) (int, error)
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Registry  *schema.Registry
	Catalog   CatalogReloader
	Forms     *form.Provider
	Relations *relation.Resolver
	Records   *records.Service
	Sessions  *session.Store
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip the
// request-scoped layers.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	resources := &resourceHandlers{deps: deps}
	sessions := newSessionHandlers(deps, logger)

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(BodyLimit(deps.Config.Server.MaxBodyBytes))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/api/resources", func(r chi.Router) {
			r.Get("/", resources.list)
			r.Route("/{resource}", func(r chi.Router) {
				r.Get("/", resources.get)
				r.Get("/records", resources.listRecords)
				r.Delete("/records/{id}", resources.deleteRecord)
				r.Get("/form", resources.form)
				r.Get("/fields/{field}/options", resources.options)
				r.Post("/sessions", sessions.create)
			})
		})

		r.Route("/api/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", sessions.get)
			r.Patch("/", sessions.update)
			r.Delete("/", sessions.close)
			r.Post("/reset", sessions.reset)
			r.Post("/submit", sessions.submit)
		})

		r.Post("/api/catalog/reload", resources.reloadCatalog)
	})

	return r
}
