// Package retry provides a policy-driven retry-with-backoff primitive
// shared by the crawler and the embedding adapters, so the two layers
// cannot grow divergent retry logic.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Exponential doubles the base delay per attempt, capped at MaxDelay.
	Exponential Strategy = iota

	// Linear grows the delay by BaseDelay per attempt.
	Linear
)

// Policy is a retry policy value. The zero value performs no retries.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Retry-After hints may exceed it
	// but are clamped to 4x MaxDelay as a safety ceiling.
	MaxDelay time.Duration

	Strategy Strategy

	// Jitter, when set, perturbs each computed delay. Retry-After hints
	// are honored verbatim and never jittered.
	Jitter func(time.Duration) time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer; tests
	// override it to observe delays without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// PlusMinus20 perturbs d by up to ±20%, avoiding synchronized retries
// across workers hitting the same origin.
func PlusMinus20(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 5
	return d + time.Duration(rand.Int63n(2*spread+1)-spread)
}

// Delay returns the wait before retry attempt n (1-based), before jitter.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	var d time.Duration
	switch p.Strategy {
	case Linear:
		d = p.BaseDelay * time.Duration(n)
	default:
		d = p.BaseDelay << (n - 1)
		if d <= 0 { // shift overflow
			d = p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op, retrying transient failures according to the policy.
// An error is transient when it unwraps to *domain.TransientError; any
// other error is returned immediately. A transient error's RetryAfter
// hint overrides the computed backoff, clamped to 4x MaxDelay.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var transient *domain.TransientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}

		wait := p.Delay(attempt + 1)
		if p.Jitter != nil {
			wait = p.Jitter(wait)
		}
		if transient.RetryAfter > 0 {
			wait = transient.RetryAfter
			if ceiling := 4 * p.MaxDelay; ceiling > 0 && wait > ceiling {
				wait = ceiling
			}
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
