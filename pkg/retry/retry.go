// Package retry replays short transactions that lost a lock race:
// PostgreSQL serialization failures and deadlocks, or a busy SQLite file.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds how often and how fast an operation is replayed.
type Policy struct {
	// Attempts includes the first call.
	Attempts int

	// BaseDelay doubles after every failed attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter spreads each delay by up to this fraction either way, so
	// writers that collided once do not collide again in lockstep.
	Jitter float64

	// Transient reports errors worth replaying. Anything else is returned
	// at once.
	Transient func(error) bool
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	sleep  func(context.Context, time.Duration) error
}

// New creates a Retrier. A nil Transient never retries.
func New(p Policy) *Retrier {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return &Retrier{policy: p, sleep: sleepCtx}
}

// TransactionRetrier is the policy the stores wrap their per-user
// transactions in. Each attempt is a full transaction, so replaying is safe.
func TransactionRetrier(transient func(error) bool) *Retrier {
	return New(Policy{
		Attempts:  4,
		BaseDelay: 20 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Jitter:    0.2,
		Transient: transient,
	})
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempts run out. The last error from op is returned as is.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.policy.Attempts || r.policy.Transient == nil || !r.policy.Transient(err) {
			return err
		}
		if r.sleep(ctx, r.delay(attempt)) != nil {
			return err
		}
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.policy.BaseDelay
	for i := 1; i < attempt && d < r.policy.MaxDelay; i++ {
		d *= 2
	}
	if d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	if r.policy.Jitter > 0 && d > 0 {
		spread := float64(d) * r.policy.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
