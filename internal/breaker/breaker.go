// Package breaker guards calls to flaky collaborators (the quote provider,
// Redis, webhook targets). After MaxFailures consecutive failures the breaker
// opens and rejects calls for ResetTimeout, then lets a single probe through.
// A successful probe closes it again; a failed one reopens it.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("breaker: circuit open")

// State is the breaker state.
type State int

const (
	Closed   State = 0
	Open     State = 1
	HalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker. Zero values take the defaults below.
type Config struct {
	Name         string
	MaxFailures  int           // default 5
	ResetTimeout time.Duration // default 10s
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool

	// OnStateChange is called, under the breaker lock, on every transition.
	OnStateChange func(name string, from, to State)

	now func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		now:          time.Now,
	}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the circuit is open. Context cancellation is not counted
// as a failure of the guarded collaborator.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && !errors.Is(err, context.Canceled) {
		b.failures++
		b.lastFailure = b.now()
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.transition(Open)
		}
		return err
	}
	if b.state == HalfOpen {
		b.transition(Closed)
	}
	b.failures = 0
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.probing = true
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(b.name, from, to)
	}
}
