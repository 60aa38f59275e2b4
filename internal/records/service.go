// Package records loads, deletes and submits backend records of a resource.
package records

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/endpoint"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/internal/payload"
	"github.com/pitabwire/schemadmin/internal/relation"
	"github.com/pitabwire/schemadmin/model"
)

// Policy selects which values an update submits.
type Policy string

// Submission policies.
const (
	// PolicyChanged sends only the changed fields with PATCH.
	PolicyChanged Policy = "changed"
	// PolicyAll sends every field with PUT.
	PolicyAll Policy = "all"
)

// EditState is the part of an edit session a submission reads and re-seeds.
type EditState interface {
	RecordID() string
	ChangedFields() map[string]any
	AllData() map[string]any
	FileStates() map[string]*model.FileFieldState
	SetEditData(record map[string]any)
}

// Service talks to a resource's list and detail endpoints.
type Service struct {
	caller  model.Caller
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates a Service. logger and metrics may be nil.
func New(caller model.Caller, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{caller: caller, logger: logger, metrics: metrics}
}

// List loads the records of a resource from its list endpoint. Responses
// that are neither an array nor a results envelope yield no records.
func (s *Service) List(ctx context.Context, res *model.Resource) ([]map[string]any, error) {
	if res.ListEndpoint == nil || !res.CanRead {
		return nil, model.NewBadRequestError("resource " + res.Name + " cannot be listed")
	}
	result, err := s.caller.Call(ctx, model.CallRequest{
		Path:   endpoint.Normalize(res.ListEndpoint.Path, ""),
		Method: http.MethodGet,
	})
	if err != nil {
		return nil, fetchError(err, "loading "+res.Name+" records")
	}
	if !result.OK() {
		return nil, backendError(result, res.Name+" records")
	}
	items, _ := relation.ExtractItems(result.Body)
	if items == nil {
		items = []map[string]any{}
	}
	return items, nil
}

// Get loads one record from the detail endpoint.
func (s *Service) Get(ctx context.Context, res *model.Resource, id string) (map[string]any, error) {
	if res.DetailEndpoint == nil {
		return nil, model.NewBadRequestError("resource " + res.Name + " has no detail endpoint")
	}
	result, err := s.caller.Call(ctx, model.CallRequest{
		Path:   endpoint.Normalize(res.DetailEndpoint.Path, id),
		Method: http.MethodGet,
	})
	if err != nil {
		return nil, fetchError(err, "loading "+res.Name+" "+id)
	}
	if !result.OK() {
		return nil, backendError(result, res.Name+" "+id)
	}
	record, ok := result.Body.(map[string]any)
	if !ok {
		return nil, model.NewFetchFailedError("loading " + res.Name + " " + id + ": response is not an object")
	}
	return record, nil
}

// Delete removes one record through the detail endpoint.
func (s *Service) Delete(ctx context.Context, res *model.Resource, id string) error {
	if res.DetailEndpoint == nil || !res.CanDelete {
		return model.NewBadRequestError("resource " + res.Name + " does not allow deletion")
	}
	result, err := s.caller.Call(ctx, model.CallRequest{
		Path:   endpoint.Normalize(res.DetailEndpoint.Path, id),
		Method: http.MethodDelete,
	})
	if err != nil {
		return fetchError(err, "deleting "+res.Name+" "+id)
	}
	if !result.OK() {
		return backendError(result, res.Name+" "+id)
	}
	s.logger.Info("record deleted", zap.String("resource", res.Name), zap.String("id", id))
	return nil
}

// Submit sends the edit state to the backend. A session without a record id
// creates a record with POST on the list endpoint; otherwise policy selects
// PATCH with the changed fields or PUT with all fields on the detail
// endpoint. On success the session is re-seeded with the saved record and
// that record is returned. On failure the session is left untouched.
func (s *Service) Submit(ctx context.Context, res *model.Resource, state EditState, policy Policy) (map[string]any, error) {
	ctx, span := observability.StartSpan(ctx, "records.Submit", observability.AttrResource.String(res.Name))
	defer span.End()

	id := state.RecordID()
	path, method, values, err := s.target(res, state, id, policy)
	if err != nil {
		return nil, err
	}

	p := payload.Format(values, res.Fields, state.FileStates())
	span.SetAttributes(
		attribute.String("http.request.method", method),
		observability.AttrEncoding.String(string(p.Encoding)),
		attribute.Int("payload.fields", len(p.Values)+len(p.Files)),
	)

	if method == http.MethodPatch && len(p.Values) == 0 && len(p.Files) == 0 {
		s.metrics.RecordSubmission(string(p.Encoding), "unchanged")
		return state.AllData(), nil
	}

	result, err := s.caller.Call(ctx, model.CallRequest{Path: path, Method: method, Body: p.Body()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend call failed")
		s.metrics.RecordSubmission(string(p.Encoding), "error")
		return nil, fetchError(err, "saving "+res.Name)
	}
	if !result.OK() {
		env := backendError(result, res.Name)
		outcome := "error"
		if env.Code == model.ErrValidationError {
			outcome = "invalid"
		}
		span.SetStatus(codes.Error, env.Code)
		s.metrics.RecordSubmission(string(p.Encoding), outcome)
		s.logger.Info("submission rejected",
			zap.String("resource", res.Name),
			zap.String("id", id),
			zap.Int("status", result.StatusCode),
			zap.String("code", env.Code),
		)
		return nil, env
	}

	record, ok := result.Body.(map[string]any)
	if !ok {
		record = state.AllData()
	}
	state.SetEditData(record)
	s.metrics.RecordSubmission(string(p.Encoding), "success")
	return record, nil
}

func (s *Service) target(res *model.Resource, state EditState, id string, policy Policy) (path, method string, values map[string]any, err error) {
	if id == "" {
		if res.ListEndpoint == nil || !res.CanCreate {
			return "", "", nil, model.NewBadRequestError("resource " + res.Name + " does not allow creation")
		}
		return endpoint.Normalize(res.ListEndpoint.Path, ""), http.MethodPost, state.AllData(), nil
	}

	if res.DetailEndpoint == nil || !res.CanUpdate {
		return "", "", nil, model.NewBadRequestError("resource " + res.Name + " does not allow updates")
	}
	path = endpoint.Normalize(res.DetailEndpoint.Path, id)

	method, values = http.MethodPatch, state.ChangedFields()
	if policy == PolicyAll {
		method, values = http.MethodPut, state.AllData()
	}
	// Fall back to the other update method when only one is declared.
	if !res.DetailEndpoint.Allows(method) {
		switch {
		case method == http.MethodPatch && res.DetailEndpoint.Allows(http.MethodPut):
			method, values = http.MethodPut, state.AllData()
		case method == http.MethodPut && res.DetailEndpoint.Allows(http.MethodPatch):
			method = http.MethodPatch
		}
	}
	return path, method, values, nil
}

// fetchError keeps envelopes from the caller and wraps anything else as a
// fetch failure.
func fetchError(err error, what string) error {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env
	}
	return model.NewFetchFailedError(what + ": " + err.Error())
}
