// Package circuitbreaker stops calling a dependency that keeps failing.
//
// After a run of consecutive failures the breaker opens and rejects calls
// with ErrOpen. Once the cooldown has passed a single probe call is let
// through; its result closes the breaker again or reopens it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a Breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned without calling the dependency while the breaker is
// open or a probe is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold = 3
	defaultCooldown  = 15 * time.Second
)

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets how many consecutive failures open the breaker.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithOnStateChange registers a callback run on every transition. It is
// called with the breaker's lock held and must not call back into it.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// WithIgnored lists errors that prove the dependency answered, such as a
// cache miss. They are returned to the caller but count as successes.
func WithIgnored(errs ...error) Option {
	return func(b *Breaker) {
		b.ignored = append(b.ignored, errs...)
	}
}

// Breaker guards calls to one dependency. It is safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	onChange  func(name string, from, to State)
	ignored   []error
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed Breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute calls fn unless the breaker rejects it, and returns fn's error
// unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.release(b.isFailure(err))
	return err
}

func (b *Breaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, ignored := range b.ignored {
		if errors.Is(err, ignored) {
			return false
		}
	}
	return true
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
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

func (b *Breaker) release(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.probing = false
	}

	if !failed {
		b.failures = 0
		if b.state == HalfOpen {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
