package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errDown = errors.New("redis: connection refused")
	errMiss = errors.New("cache: key not found")
)

func failing(context.Context) error { return errDown }
func passing(context.Context) error { return nil }

// manualClock lets tests move past the cooldown without sleeping.
type manualClock struct{ at time.Time }

func (c *manualClock) now() time.Time          { return c.at }
func (c *manualClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestBreaker(clock *manualClock, opts ...Option) *Breaker {
	b := New("redis", opts...)
	b.now = clock.now
	return b
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &manualClock{at: time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clock, WithThreshold(2))
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, failing), errDown)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, failing), errDown)
	assert.Equal(t, Open, b.State())

	calls := 0
	err := b.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	clock := &manualClock{}
	b := newTestBreaker(clock, WithThreshold(2))
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	assert.NoError(t, b.Execute(ctx, passing))
	_ = b.Execute(ctx, failing)

	assert.Equal(t, Closed, b.State())
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	var transitions []State
	clock := &manualClock{}
	b := newTestBreaker(clock,
		WithThreshold(1),
		WithCooldown(time.Minute),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "redis", name)
			transitions = append(transitions, to)
		}),
	)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	clock.advance(30 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, passing), ErrOpen)

	clock.advance(30 * time.Second)
	assert.NoError(t, b.Execute(ctx, passing))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []State{Open, HalfOpen, Closed}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := &manualClock{}
	b := newTestBreaker(clock, WithThreshold(3), WithCooldown(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, failing)
	}
	clock.advance(time.Minute)

	assert.ErrorIs(t, b.Execute(ctx, failing), errDown)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Execute(ctx, passing), ErrOpen)
}

func TestBreakerSingleProbeInFlight(t *testing.T) {
	clock := &manualClock{}
	b := newTestBreaker(clock, WithThreshold(1), WithCooldown(time.Second))
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	clock.advance(time.Second)

	err := b.Execute(ctx, func(ctx context.Context) error {
		assert.Equal(t, HalfOpen, b.State())
		assert.ErrorIs(t, b.Execute(ctx, passing), ErrOpen)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerIgnoredErrorsCountAsSuccess(t *testing.T) {
	b := New("redis", WithThreshold(1), WithIgnored(errMiss))
	ctx := context.Background()

	miss := func(context.Context) error { return errMiss }
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, miss), errMiss)
	}
	assert.Equal(t, Closed, b.State())

	_ = b.Execute(ctx, failing)
	assert.Equal(t, Open, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
