// Package breaker implements a circuit breaker for calls into flaky external
// services such as the narration synthesizer.
//
// A breaker starts closed and counts consecutive failures. Once the failure
// threshold is reached it opens and rejects calls outright. After the recovery
// timeout a single trial call is admitted (half-open); success closes the
// breaker and failure reopens it with a fresh recovery window.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected because the circuit is open.
// Callers can treat it as a transient condition and retry later.
var ErrOpen = errors.New("circuit breaker open")

// State identifies the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings control when a breaker trips and how long it stays open.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Values below 1 are treated as 1.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a trial call
	// is admitted.
	RecoveryTimeout time.Duration
	// OnStateChange is invoked after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// now overrides the clock in tests.
	now func() time.Time
}

// Breaker guards a single named dependency.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New constructs a closed breaker for the named dependency.
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.now == nil {
		settings.now = time.Now
	}
	return &Breaker{name: name, settings: settings, state: StateClosed}
}

// Name returns the dependency name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current position, accounting for recovery timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.recoveryElapsed() {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed right now. When the recovery
// timeout has elapsed on an open circuit the breaker moves to half-open and
// admits exactly one trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateHalfOpen:
		// A trial call is already in flight.
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	default:
		if !b.recoveryElapsed() {
			b.mu.Unlock()
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.setState(StateHalfOpen)
		b.mu.Unlock()
		return nil
	}
}

// RecordSuccess notes a successful call, closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
	b.mu.Unlock()
}

// RecordFailure notes a failed call. A half-open trial failure reopens the
// circuit immediately; in the closed state the circuit opens once the
// consecutive failure count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.openedAt = b.settings.now()
		b.setState(StateOpen)
		b.mu.Unlock()
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.settings.FailureThreshold {
		b.openedAt = b.settings.now()
		b.setState(StateOpen)
	}
	b.mu.Unlock()
}

// Do runs op under the breaker, recording the outcome. When the circuit is
// open the operation is not invoked and ErrOpen is returned.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Cancellation is not a dependency failure; leave the state alone.
		return err
	}
	if err := op(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// setState transitions and fires the callback. Caller holds the lock; the
// callback runs asynchronously so listeners cannot deadlock the breaker.
func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if cb := b.settings.OnStateChange; cb != nil && from != to {
		go cb(b.name, from, to)
	}
}

func (b *Breaker) recoveryElapsed() bool {
	return b.settings.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout
}

// Registry hands out one breaker per named dependency so independent
// services trip independently.
type Registry struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs a registry applying the same settings to every
// dependency.
func NewRegistry(settings Settings) *Registry {
	return &Registry{settings: settings, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.settings)
	r.breakers[name] = b
	return b
}

// States returns a snapshot of every known breaker's position.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(names))
	for _, b := range names {
		out[b.Name()] = b.State()
	}
	return out
}
