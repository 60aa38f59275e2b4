package relation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/schemadmin/internal/classify"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/model"
)

// DefaultLookupPath is the shared lookup catalog endpoint.
const DefaultLookupPath = "lookups/"

// Option sources reported in a Resolution.
const (
	SourceChoices = "choices"
	SourceLookup  = "lookup"
	SourceCatalog = "catalog"
	SourceProbe   = "probe"
	SourceNone    = "none"
)

// Resolution is the outcome of resolving one field's options. An empty
// Options with a Warning means every strategy failed; the field stays
// usable but unpopulated.
type Resolution struct {
	Options  []model.RelationOption `json:"options"`
	Source   string                 `json:"source"`
	Endpoint string                 `json:"endpoint,omitempty"`
	Warning  string                 `json:"warning,omitempty"`
	Cached   bool                   `json:"-"`
}

// Catalog exposes the already-loaded endpoint catalog.
type Catalog interface {
	Endpoints() []model.Endpoint
}

// Resolver resolves relation options using, in order, the lookup catalog,
// a matching catalog endpoint and sequential pattern probing.
type Resolver struct {
	caller      model.Caller
	catalog     Catalog
	cache       OptionCache
	lookupPath  string
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the option cache.
func WithCache(c OptionCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithLookupPath overrides DefaultLookupPath.
func WithLookupPath(path string) ResolverOption {
	return func(r *Resolver) {
		if path != "" {
			r.lookupPath = path
		}
	}
}

// WithConcurrency bounds how many fields ResolveAll resolves at once.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. catalog may be nil, in which case the
// catalog strategy is skipped.
func NewResolver(caller model.Caller, catalog Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		caller:      caller,
		catalog:     catalog,
		lookupPath:  DefaultLookupPath,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the options of one field. It never fails on backend
// errors; only context cancellation is returned.
func (r *Resolver) Resolve(ctx context.Context, f model.Field) (Resolution, error) {
	ctx, span := observability.StartSpan(ctx, "relation.Resolve", observability.AttrField.String(f.Name))
	defer span.End()

	kind := f.Kind
	if kind == "" {
		kind = classify.Classify(f)
	}

	if !kind.IsRelation() {
		if f.HasChoices() {
			return Resolution{Options: ChoiceOptions(f.Choices), Source: SourceChoices}, nil
		}
		return Resolution{Options: []model.RelationOption{}, Source: SourceNone}, nil
	}

	key := cacheKey(f, kind)
	if r.cache != nil {
		if res, ok := r.cache.Get(ctx, key); ok {
			r.metrics.RecordRelationCacheHit()
			res.Cached = true
			span.SetAttributes(observability.AttrRelationSource.String(res.Source), observability.AttrCacheHit.Bool(true))
			return res, nil
		}
		r.metrics.RecordRelationCacheMiss()
	}

	res, err := r.resolve(ctx, f, kind)
	if err != nil {
		return Resolution{}, err
	}

	span.SetAttributes(
		observability.AttrRelationSource.String(res.Source),
		observability.AttrCacheHit.Bool(false),
		attribute.Int("schemadmin.relation_options", len(res.Options)),
	)
	r.metrics.RecordRelationResolution(res.Source)
	if r.cache != nil && res.Source != SourceNone {
		r.cache.Set(ctx, key, res)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, f model.Field, kind model.FieldKind) (Resolution, error) {
	label := kindLabel(f)

	if kind == model.KindLookup {
		name, ok := ExtractLookupName(f.LimitChoicesTo)
		if !ok {
			name = FormatFieldName(f.Name)
			r.logger.Debug("lookup name unresolved, using field name",
				zap.String("field", f.Name),
				zap.String("limit_choices_to", f.LimitChoicesTo),
				zap.String("lookup_name", name),
			)
		}
		items, err := fetchList(ctx, r.caller, r.lookupPath, map[string]string{"name": name})
		if err == nil {
			return Resolution{Options: Options(items, label), Source: SourceLookup, Endpoint: r.lookupPath}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{}, ctxErr
		}
		r.logger.Debug("lookup query failed", zap.String("field", f.Name), zap.String("lookup_name", name), zap.Error(err))
	}

	if ep, ok := r.catalogEndpoint(f); ok {
		items, err := fetchList(ctx, r.caller, ep.Path, nil)
		if err == nil {
			return Resolution{Options: Options(items, label), Source: SourceCatalog, Endpoint: ep.Path}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{}, ctxErr
		}
		r.logger.Debug("catalog endpoint failed", zap.String("field", f.Name), zap.String("path", ep.Path), zap.Error(err))
	}

	patterns := CandidatePatterns(f)
	prober := NewProber(patterns)
	if err := prober.Run(ctx, r.caller, r.logger, r.metrics); err != nil {
		return Resolution{}, err
	}
	if path, items, ok := prober.Result(); ok {
		return Resolution{Options: Options(items, label), Source: SourceProbe, Endpoint: path}, nil
	}

	warning := fmt.Sprintf("no endpoint found for %q after %d candidates", f.Name, len(patterns))
	r.logger.Warn("relation options unavailable",
		zap.String("field", f.Name),
		zap.String("related_model", f.RelatedModel),
		zap.Strings("patterns", patterns),
	)
	return Resolution{Options: []model.RelationOption{}, Source: SourceNone, Warning: warning}, nil
}

// catalogEndpoint finds a list endpoint for the field's related model. Path
// matches on "app/model" beat path matches on "model/", which beat
// identifier matches.
func (r *Resolver) catalogEndpoint(f model.Field) (model.Endpoint, bool) {
	if r.catalog == nil || f.RelatedModel == "" {
		return model.Endpoint{}, false
	}
	app, mdl := f.AppModel()
	app, mdl = strings.ToLower(app), strings.ToLower(mdl)
	if mdl == "" {
		return model.Endpoint{}, false
	}

	var lists []model.Endpoint
	for _, ep := range r.catalog.Endpoints() {
		if ep.IsList() {
			lists = append(lists, ep)
		}
	}

	matchers := []func(model.Endpoint) bool{
		func(ep model.Endpoint) bool {
			return app != "" && strings.Contains(strings.ToLower(ep.Path), app+"/"+mdl)
		},
		func(ep model.Endpoint) bool {
			return strings.Contains(strings.ToLower(ep.Path), mdl+"/")
		},
		func(ep model.Endpoint) bool {
			return strings.Contains(strings.ToLower(ep.Name), mdl)
		},
	}
	for _, match := range matchers {
		for _, ep := range lists {
			if match(ep) {
				return ep, true
			}
		}
	}
	return model.Endpoint{}, false
}

// ResolveAll resolves every relation or choice field concurrently. Each
// field's own probing stays sequential. The result is keyed by field name.
func (r *Resolver) ResolveAll(ctx context.Context, fields []model.Field) (map[string]Resolution, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]Resolution)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, f := range fields {
		if !f.Kind.IsRelation() && !f.HasChoices() {
			continue
		}
		g.Go(func() error {
			res, err := r.Resolve(gctx, f)
			if err != nil {
				return err
			}
			mu.Lock()
			out[f.Name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Purge empties the option cache, if any.
func (r *Resolver) Purge(ctx context.Context) {
	if r.cache != nil {
		r.cache.Purge(ctx)
	}
}

func cacheKey(f model.Field, kind model.FieldKind) string {
	switch {
	case kind == model.KindLookup:
		name, ok := ExtractLookupName(f.LimitChoicesTo)
		if !ok {
			name = FormatFieldName(f.Name)
		}
		return "lookup:" + name
	case f.RelatedModel != "":
		return "model:" + strings.ToLower(f.RelatedModel)
	default:
		return "field:" + strings.TrimSuffix(strings.ToLower(f.Name), "_id")
	}
}
