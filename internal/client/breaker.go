package client

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by Breaker.Allow while the breaker rejects calls.
var ErrBreakerOpen = errors.New("client: circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

// Breaker states. The numeric values are exported as the circuit breaker
// gauge.
const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker trips after a run of consecutive backend failures and rejects
// calls until a cool-down has passed. After the cool-down calls are let
// through again; a run of successes closes it, any failure reopens it.
type Breaker struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time
	onChange         func(BreakerState)

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker. Zero or negative arguments fall back
// to 5 failures, 2 successes and a 30s cool-down.
func NewBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// OnStateChange registers fn to be called, outside the lock, after every
// transition.
func (b *Breaker) OnStateChange(fn func(BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow returns ErrBreakerOpen while the breaker is open and the cool-down
// has not elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	changed := b.refresh()
	open := b.state == BreakerOpen
	b.mu.Unlock()

	b.notify(changed)
	if open {
		return ErrBreakerOpen
	}
	return nil
}

// Success records a call the backend answered.
func (b *Breaker) Success() {
	b.mu.Lock()
	var changed *BreakerState
	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			changed = b.transition(BreakerClosed)
		}
	}
	b.mu.Unlock()
	b.notify(changed)
}

// Failure records a call that failed at the transport level or with a
// server error.
func (b *Breaker) Failure() {
	b.mu.Lock()
	var changed *BreakerState
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			changed = b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		changed = b.transition(BreakerOpen)
	}
	b.mu.Unlock()
	b.notify(changed)
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	changed := b.refresh()
	s := b.state
	b.mu.Unlock()
	b.notify(changed)
	return s
}

// refresh moves an expired open breaker to half-open. Caller holds mu.
func (b *Breaker) refresh() *BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return b.transition(BreakerHalfOpen)
	}
	return nil
}

// transition switches state and resets counters. Caller holds mu.
func (b *Breaker) transition(to BreakerState) *BreakerState {
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == BreakerOpen {
		b.openedAt = b.now()
	}
	return &to
}

func (b *Breaker) notify(changed *BreakerState) {
	if changed == nil {
		return
	}
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn(*changed)
	}
}
