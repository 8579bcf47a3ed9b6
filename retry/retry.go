// Package retry runs a single effectful call with bounded retries and
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Operation performs one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Policy configures Do. Zero fields take the defaults of DefaultPolicy.
type Policy struct {
	// MaxAttempts bounds the number of calls to the operation.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Each later wait
	// doubles, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable classifies failures. Defaults to IsServerError.
	Retryable func(error) bool

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is invoked before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns three attempts with 1s, 2s waits capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Retryable:   IsServerError,
		Sleep:       sleep,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}

// Delays returns the waits the policy schedules between attempts.
func (p Policy) Delays() []time.Duration {
	p = p.withDefaults()
	b := p.schedule()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return b
}

// Do calls op until it succeeds, fails with a non-retryable error, or
// MaxAttempts calls have failed. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	p = p.withDefaults()
	b := p.schedule()

	var zero T
	for attempt := 1; ; attempt++ {
		res, err := op(ctx, attempt)
		if err == nil {
			return res, nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			return zero, err
		}

		delay := b.NextBackOff()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return zero, errors.Join(err, serr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
