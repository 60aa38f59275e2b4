package session

import (
	"encoding/json"
	"sync"
	"time"
)

// FieldUpdater receives debounced field values.
type FieldUpdater interface {
	UpdateField(name string, value any) error
}

// Propagator coalesces rapid whole-form value notifications and applies the
// last one to a FieldUpdater after a quiet period. A notification whose JSON
// form equals the previous notification is dropped.
type Propagator struct {
	target FieldUpdater
	delay  time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  map[string]any
	last     string
	onApply  []func()
	stopped  bool
	applyErr error
}

// NewPropagator creates a Propagator with the given debounce delay.
func NewPropagator(target FieldUpdater, delay time.Duration) *Propagator {
	return &Propagator{target: target, delay: delay}
}

// OnApply registers fn to run after each applied batch.
func (p *Propagator) OnApply(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onApply = append(p.onApply, fn)
}

// Notify reports the whole form value. It returns false when the value was
// dropped as a duplicate of the previous notification.
func (p *Propagator) Notify(values map[string]any) bool {
	encoded, err := json.Marshal(values)
	if err != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || string(encoded) == p.last {
		return false
	}
	p.last = string(encoded)
	p.pending = values

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.delay, p.fire)
	return true
}

func (p *Propagator) fire() {
	_ = p.apply()
}

func (p *Propagator) apply() error {
	p.mu.Lock()
	values := p.pending
	p.pending = nil
	p.timer = nil
	hooks := append([]func(){}, p.onApply...)
	p.mu.Unlock()

	if values == nil {
		return nil
	}
	var firstErr error
	for name, v := range values {
		if err := p.target.UpdateField(name, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.mu.Lock()
	p.applyErr = firstErr
	p.mu.Unlock()

	if firstErr != nil {
		return firstErr
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Flush applies any pending notification immediately and returns the error
// of that batch. It returns nil when nothing was pending.
func (p *Propagator) Flush() error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.apply()
}

// Err returns the error of the last applied batch.
func (p *Propagator) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyErr
}

// Forget clears the duplicate filter so the next notification is applied
// even when it repeats the previous one.
func (p *Propagator) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = ""
}

// Stop discards pending notifications and ignores later ones.
func (p *Propagator) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
