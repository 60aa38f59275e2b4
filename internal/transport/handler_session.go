package transport

import (
	"context"
	"encoding/base64"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/internal/payload"
	"github.com/pitabwire/schemadmin/internal/records"
	"github.com/pitabwire/schemadmin/internal/session"
	"github.com/pitabwire/schemadmin/model"
)

type createSessionRequest struct {
	RecordID      string         `json:"record_id"`
	LoadFreshData bool           `json:"load_fresh_data"`
	Record        map[string]any `json:"record"`
}

type updateSessionRequest struct {
	Values map[string]any `json:"values"`
	// Debounce leaves the values pending for the propagation delay instead
	// of applying them before responding.
	Debounce bool `json:"debounce"`
}

type resetSessionRequest struct {
	Field string `json:"field"`
}

type fileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
	Replace     bool   `json:"replace"`
}

type submitSessionRequest struct {
	Policy string                `json:"policy"`
	Files  map[string]fileUpload `json:"files"`
}

// editor is the server-side form bound to one edit session.
type editor struct {
	session    *session.Session
	form       *form.Model
	propagator *session.Propagator
	saver      *session.AutoSaver
}

// validate checks values against the form using the session's current
// file states.
func (e *editor) validate(values map[string]any) map[string][]string {
	fm := *e.form
	fm.FileStates = e.session.FileStates()
	return fm.Validate(values)
}

func (e *editor) stop() {
	e.propagator.Stop()
	if e.saver != nil {
		e.saver.Stop()
	}
}

type sessionHandlers struct {
	deps   Dependencies
	logger *zap.Logger

	mu      sync.Mutex
	editors map[string]*editor
}

func newSessionHandlers(deps Dependencies, logger *zap.Logger) *sessionHandlers {
	h := &sessionHandlers{deps: deps, logger: logger, editors: make(map[string]*editor)}
	if deps.Sessions != nil {
		deps.Sessions.OnClose(h.forget)
	}
	return h
}

func (h *sessionHandlers) forget(id string) {
	h.mu.Lock()
	ed, ok := h.editors[id]
	delete(h.editors, id)
	h.mu.Unlock()
	if ok {
		ed.stop()
	}
}

func (h *sessionHandlers) editor(w http.ResponseWriter, r *http.Request) (*editor, bool) {
	id := chi.URLParam(r, "sessionId")
	if _, err := h.deps.Sessions.Get(id); err != nil {
		WriteError(w, err)
		return nil, false
	}
	h.mu.Lock()
	ed, ok := h.editors[id]
	h.mu.Unlock()
	if !ok {
		WriteError(w, model.NewSessionNotFoundError(id))
		return nil, false
	}
	return ed, true
}

func (h *sessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	res, ok := h.deps.Registry.Resource(name)
	if !ok {
		WriteNotFound(w, "resource "+name+" not found")
		return
	}

	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.RecordID == "" && !res.CanCreate {
		WriteError(w, model.NewBadRequestError("resource "+name+" does not allow creation"))
		return
	}

	logger := observability.RequestLogger(r.Context(), h.logger)
	s := h.deps.Sessions.Open()
	err := s.Initialize(r.Context(), res, req.RecordID, session.InitOptions{LoadFreshData: req.LoadFreshData})
	switch {
	case err != nil && req.Record != nil:
		logger.Warn("record load failed, using supplied record",
			zap.String("resource", name),
			zap.String("record_id", req.RecordID),
			zap.Error(err),
		)
		s.SetEditData(req.Record)
	case err != nil:
		_ = h.deps.Sessions.Close(s.ID())
		WriteError(w, err)
		return
	case req.Record != nil && !req.LoadFreshData:
		s.SetEditData(req.Record)
	}

	var record map[string]any
	if req.RecordID != "" {
		record = s.AllData()
	}
	fm := h.deps.Forms.ForRecord(res, record, req.RecordID)
	if req.RecordID == "" && req.Record == nil {
		s.SetEditData(fm.Values)
	}

	ed := &editor{
		session:    s,
		form:       fm,
		propagator: session.NewPropagator(s, h.deps.Config.Session.Debounce),
	}
	if h.deps.Config.Session.AutoSave {
		ed.saver = session.NewAutoSaver(s, h.autoSave(res), ed.validate, h.deps.Config.Session.AutoSaveDelay, h.logger)
		ed.propagator.OnApply(ed.saver.Trigger)
	}

	h.mu.Lock()
	h.editors[s.ID()] = ed
	h.mu.Unlock()

	logger.Info("edit session opened",
		zap.String("session", s.ID()),
		zap.String("resource", name),
		zap.String("record_id", req.RecordID),
	)
	WriteJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *sessionHandlers) autoSave(res *model.Resource) session.SaveFunc {
	return func(ctx context.Context, s *session.Session) error {
		_, err := h.deps.Records.Submit(ctx, res, s, records.PolicyChanged)
		return err
	}
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ed.session.Snapshot())
}

func (h *sessionHandlers) update(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Values == nil {
		WriteError(w, model.NewBadRequestError("values is required"))
		return
	}

	ed.propagator.Notify(req.Values)
	if req.Debounce {
		WriteJSON(w, http.StatusAccepted, ed.session.Snapshot())
		return
	}
	if err := ed.propagator.Flush(); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ed.session.Snapshot())
}

func (h *sessionHandlers) close(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.Close(chi.URLParam(r, "sessionId")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req resetSessionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	var err error
	if req.Field != "" {
		err = ed.session.ResetField(req.Field)
	} else {
		err = ed.session.ResetAll()
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	ed.propagator.Forget()
	WriteJSON(w, http.StatusOK, ed.session.Snapshot())
}

func (h *sessionHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	var req submitSessionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	policy := records.PolicyChanged
	switch req.Policy {
	case "", string(records.PolicyChanged):
	case string(records.PolicyAll):
		policy = records.PolicyAll
	default:
		WriteError(w, model.NewBadRequestError("unknown submit policy "+req.Policy))
		return
	}

	if err := ed.propagator.Flush(); err != nil {
		WriteError(w, err)
		return
	}
	if err := stageFiles(ed.session, req.Files); err != nil {
		WriteError(w, err)
		return
	}
	if errs := ed.validate(ed.session.AllData()); errs != nil {
		WriteError(w, model.NewValidationError(fieldErrors(errs)))
		return
	}

	s := ed.session
	res := s.Resource()
	if res == nil {
		WriteError(w, model.NewSessionNotActiveError())
		return
	}
	encoding := payload.EncodingFor(res.Fields, s.FileStates())
	record, err := h.deps.Records.Submit(r.Context(), res, s, policy)
	if err != nil {
		WriteError(w, err)
		return
	}
	ed.propagator.Forget()

	observability.RequestLogger(r.Context(), h.logger).Info("edit session submitted",
		zap.String("session", s.ID()),
		zap.String("resource", res.Name),
		zap.String("encoding", string(encoding)),
	)
	WriteJSON(w, http.StatusOK, model.SubmitResponse{Encoding: string(encoding), Record: record})
}

// stageFiles applies uploaded files to the session. A file entry without
// data but with replace set clears the stored file.
func stageFiles(s *session.Session, files map[string]fileUpload) error {
	for _, name := range sortedNames(files) {
		up := files[name]
		if up.Data == "" {
			if up.Replace {
				if err := s.SetFile(name, nil); err != nil {
					return err
				}
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(up.Data)
		if err != nil {
			return model.NewBadRequestError("file " + name + " is not valid base64")
		}
		blob := &model.FileBlob{Name: up.Name, ContentType: up.ContentType, Data: data}
		if err := s.SetFile(name, blob); err != nil {
			return err
		}
	}
	return nil
}

func fieldErrors(errs map[string][]string) []model.FieldError {
	out := make([]model.FieldError, 0, len(errs))
	for _, name := range sortedNames(errs) {
		for _, msg := range errs[name] {
			out = append(out, model.FieldError{Field: name, Code: "invalid", Message: msg})
		}
	}
	return out
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
