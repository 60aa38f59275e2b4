// Package session tracks the original and current values of one record
// while it is edited, and which fields differ.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/model"
)

// State is the lifecycle state of a Session.
type State int

// Session states. Exit returns a session to Idle.
const (
	Idle State = iota
	Initializing
	Ready
	Dirty
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Dirty:
		return "dirty"
	}
	return "unknown"
}

// ErrStale is returned by Initialize when its result was superseded by a
// newer Initialize, SetEditData or Exit while the record was loading.
var ErrStale = errors.New("session: load superseded")

// RecordLoader fetches one record of a resource.
type RecordLoader interface {
	Get(ctx context.Context, res *model.Resource, id string) (map[string]any, error)
}

// InitOptions configures Initialize.
type InitOptions struct {
	// LoadFreshData fetches the record from the detail endpoint.
	LoadFreshData bool
}

// Session is the edit state of one record. It is owned by the form that
// opened it; methods are safe for concurrent use so that debounced
// propagation and request handlers can share it.
type Session struct {
	id     string
	loader RecordLoader

	mu         sync.Mutex
	state      State
	resource   *model.Resource
	recordID   string
	original   map[string]any
	current    map[string]any
	changes    map[string]bool
	hasChanges bool
	files      map[string]*model.FileFieldState
	loading    bool
	err        error
	generation uint64
	cancel     context.CancelFunc
	touched    time.Time
}

// New creates an idle session.
func New(loader RecordLoader) *Session {
	return &Session{
		id:      uuid.NewString(),
		loader:  loader,
		changes: make(map[string]bool),
		files:   make(map[string]*model.FileFieldState),
		touched: time.Now(),
	}
}

// ID returns the session identity.
func (s *Session) ID() string {
	return s.id
}

// Initialize opens the session on a record. With LoadFreshData and a detail
// endpoint, the record is fetched and becomes both the original and current
// data. A failed fetch records the error, clears the loading flag and leaves
// the session Initializing; the caller may fall back to SetEditData. Without
// LoadFreshData the session restarts from the original data it already
// holds.
//
// A newer Initialize, SetEditData or Exit cancels an in-flight fetch; its
// late result is discarded and ErrStale returned.
func (s *Session) Initialize(ctx context.Context, res *model.Resource, recordID string, opts InitOptions) error {
	s.mu.Lock()
	gen := s.supersede()
	s.resource = res
	s.recordID = recordID
	s.state = Initializing
	s.err = nil
	s.touched = time.Now()

	if !opts.LoadFreshData || res == nil || res.DetailEndpoint == nil || recordID == "" {
		s.seed(s.original)
		s.mu.Unlock()
		return nil
	}

	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loading = true
	loader := s.loader
	s.mu.Unlock()

	record, err := loader.Get(loadCtx, res, recordID)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	if gen != s.generation {
		return ErrStale
	}
	s.cancel = nil
	s.loading = false
	if err != nil {
		s.err = err
		return err
	}
	s.seed(record)
	return nil
}

// supersede invalidates any in-flight load. Must be called with mu held.
func (s *Session) supersede() uint64 {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	return s.generation
}

// seed installs record as original and current data. Must be called with
// mu held.
func (s *Session) seed(record map[string]any) {
	if record == nil {
		record = map[string]any{}
	}
	s.original = cloneMap(record)
	s.current = cloneMap(record)
	s.changes = make(map[string]bool)
	s.hasChanges = false
	s.files = make(map[string]*model.FileFieldState)
	if s.resource != nil {
		for _, f := range s.resource.Fields {
			if f.Kind == model.KindFile && !f.ReadOnly {
				s.files[f.Name] = form.FileState(record[f.Name])
			}
		}
	}
	s.err = nil
	s.state = Ready
}

// SetEditData seeds the session directly with record.
func (s *Session) SetEditData(record map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersede()
	s.touched = time.Now()
	s.seed(record)
}

// active must be called with mu held.
func (s *Session) active() bool {
	return s.state == Ready || s.state == Dirty
}

// UpdateField sets a field's current value and recomputes whether it
// differs from the original. Setting a field back to its original value
// clears its change flag. It returns SESSION_NOT_ACTIVE and changes nothing
// when the session is not Ready or Dirty.
func (s *Session) UpdateField(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return model.NewSessionNotActiveError()
	}
	s.touched = time.Now()
	s.update(name, value)
	return nil
}

// update must be called with mu held.
func (s *Session) update(name string, value any) {
	s.changes[name] = !Equal(value, s.original[name])
	s.current[name] = clone(value)
	s.recompute()
}

// recompute must be called with mu held.
func (s *Session) recompute() {
	s.hasChanges = false
	for _, changed := range s.changes {
		if changed {
			s.hasChanges = true
			break
		}
	}
	if s.hasChanges {
		s.state = Dirty
	} else {
		s.state = Ready
	}
}

// ResetField restores one field to its original value.
func (s *Session) ResetField(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return model.NewSessionNotActiveError()
	}
	s.touched = time.Now()
	s.update(name, s.original[name])
	if _, ok := s.files[name]; ok {
		s.files[name] = form.FileState(s.original[name])
	}
	return nil
}

// ResetAll restores every field, file states included, to the original.
func (s *Session) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return model.NewSessionNotActiveError()
	}
	s.touched = time.Now()
	s.current = cloneMap(s.original)
	s.changes = make(map[string]bool)
	for name := range s.files {
		s.files[name] = form.FileState(s.original[name])
	}
	s.recompute()
	return nil
}

// SetFile stages a new blob for a file field, or with a nil blob requests
// that the existing file be cleared.
func (s *Session) SetFile(name string, blob *model.FileBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return model.NewSessionNotActiveError()
	}
	st, ok := s.files[name]
	if !ok {
		return model.NewBadRequestError("field " + name + " is not a file field")
	}
	next := *st
	next.NewFile = blob
	next.ReplaceRequested = true
	s.files[name] = &next
	s.changes[name] = true
	s.touched = time.Now()
	s.recompute()
	return nil
}

// ChangedFields returns the current values of changed fields only.
func (s *Session) ChangedFields() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any)
	for name, changed := range s.changes {
		if !changed {
			continue
		}
		if v, ok := s.current[name]; ok {
			out[name] = clone(v)
		}
	}
	return out
}

// AllData returns the original data overlaid with the current data.
func (s *Session) AllData() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := cloneMap(s.original)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range s.current {
		out[k] = clone(v)
	}
	return out
}

// FileStates returns a copy of the file field states.
func (s *Session) FileStates() map[string]*model.FileFieldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.FileFieldState, len(s.files))
	for k, v := range s.files {
		st := *v
		out[k] = &st
	}
	return out
}

// HasChanges reports whether any field differs from the original.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasChanges
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resource returns the edited resource, nil while Idle.
func (s *Session) Resource() *model.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource
}

// RecordID returns the edited record's id; empty when creating.
func (s *Session) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordID
}

// Err returns the error of the last failed load.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastTouched returns when the session was last modified.
func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Exit abandons the session: any in-flight load is cancelled and all state
// is cleared back to Idle.
func (s *Session) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersede()
	s.state = Idle
	s.resource = nil
	s.recordID = ""
	s.original = nil
	s.current = nil
	s.changes = make(map[string]bool)
	s.hasChanges = false
	s.files = make(map[string]*model.FileFieldState)
	s.err = nil
}

// Snapshot renders the session for the presentation layer.
func (s *Session) Snapshot() model.SessionDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc := model.SessionDescriptor{
		ID:           s.id,
		RecordID:     s.recordID,
		State:        s.state.String(),
		IsEditing:    s.active(),
		HasChanges:   s.hasChanges,
		FieldChanges: make(map[string]bool, len(s.changes)),
		CurrentData:  cloneMap(s.current),
		Loading:      s.loading,
	}
	if s.resource != nil {
		desc.Resource = s.resource.Name
	}
	for k, v := range s.changes {
		desc.FieldChanges[k] = v
	}
	if desc.CurrentData == nil {
		desc.CurrentData = map[string]any{}
	}
	if s.err != nil {
		desc.Error = s.err.Error()
	}
	return desc
}
