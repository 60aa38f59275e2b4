package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SaveFunc persists the session. On success it is expected to re-seed the
// session with the saved record.
type SaveFunc func(ctx context.Context, s *Session) error

// ValidateFunc returns field messages for invalid values, nil when valid.
type ValidateFunc func(values map[string]any) map[string][]string

// AutoSaver saves a session after a quiet period. It fires only when the
// session has changes and its data validates. A failed save leaves the
// session's changes in place.
type AutoSaver struct {
	session  *Session
	save     SaveFunc
	validate ValidateFunc
	delay    time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	saving  sync.Mutex
	stopped bool
}

// NewAutoSaver creates an AutoSaver. validate may be nil.
func NewAutoSaver(s *Session, save SaveFunc, validate ValidateFunc, delay time.Duration, logger *zap.Logger) *AutoSaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSaver{session: s, save: save, validate: validate, delay: delay, logger: logger}
}

// Trigger (re)starts the quiet period.
func (a *AutoSaver) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, func() {
		_, _ = a.SaveNow(context.Background())
	})
}

// SaveNow runs the save checks immediately. saved reports whether the save
// function was invoked and succeeded.
func (a *AutoSaver) SaveNow(ctx context.Context) (saved bool, err error) {
	a.saving.Lock()
	defer a.saving.Unlock()

	if !a.session.HasChanges() {
		return false, nil
	}
	if a.validate != nil {
		if errs := a.validate(a.session.AllData()); errs != nil {
			a.logger.Debug("auto-save skipped, form invalid",
				zap.String("session", a.session.ID()),
				zap.Int("invalid_fields", len(errs)),
			)
			return false, nil
		}
	}
	if err := a.save(ctx, a.session); err != nil {
		a.logger.Warn("auto-save failed", zap.String("session", a.session.ID()), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Stop cancels a pending save.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
