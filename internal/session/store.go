package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/observability"
	"github.com/pitabwire/schemadmin/model"
)

// Store holds the open sessions of the HTTP layer, keyed by session id.
type Store struct {
	loader  RecordLoader
	logger  *zap.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	onClose  []func(id string)
}

// NewStore creates an empty store whose sessions load records with loader.
func NewStore(loader RecordLoader, logger *zap.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Open creates and registers a new idle session.
func (st *Store) Open() *Session {
	s := New(st.loader)

	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()

	st.metrics.SessionOpened()
	return s
}

// OnClose registers fn to run after a session is closed or swept.
func (st *Store) OnClose(fn func(id string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onClose = append(st.onClose, fn)
}

func (st *Store) closed(id string) {
	st.mu.RLock()
	hooks := st.onClose
	st.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, model.NewSessionNotFoundError(id)
	}
	return s, nil
}

// Close exits and forgets a session.
func (st *Store) Close(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return model.NewSessionNotFoundError(id)
	}
	s.Exit()
	st.metrics.SessionClosed()
	st.closed(id)
	return nil
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the open session ids, sorted.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep closes sessions untouched since before cutoff and returns how many
// were closed.
func (st *Store) Sweep(cutoff time.Time) int {
	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.LastTouched().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.Exit()
		st.metrics.SessionClosed()
		st.closed(s.ID())
		st.logger.Info("edit session expired", zap.String("session", s.ID()))
	}
	return len(expired)
}

// RunSweeper closes sessions idle for longer than idle, checking every
// interval, until ctx is done.
func (st *Store) RunSweeper(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st.Sweep(now.Add(-idle))
		}
	}
}
