/*
PURPOSE:
  Bounded retry executor shared by the warm-up gate and the dispatcher.
  Runs a call up to Retries+1 times with a pause between failed attempts.

REQUIREMENTS:
  User-specified:
  - Retry failed backend calls a fixed number of times.
  - Wait between attempts (linear for questions, constant for warm-up).

  Implementation-discovered:
  - Cancellation must cut a pending pause short, not only the next attempt.
  - Callers want every failed attempt logged with its number.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (WarmupGate, Dispatcher)
  - Uses: nothing outside the standard library

ERROR HANDLING:
  - Exhaustion is reported with ok=false, never as an error.
  - The last error is handed to OnFailure; callers substitute their own fallback.

IMPLEMENTATION RULES:
  - No pause after the final attempt.
  - Negative Retries behaves like zero.

USAGE:
  p := engine.RetryPolicy{Retries: 3, Backoff: engine.Linear(5 * time.Second)}
  text, ok := engine.Retry(ctx, p, func(ctx context.Context) (string, error) { ... })

SELF-HEALING INSTRUCTIONS:
  - If jitter is needed, add it in a Backoff func, not in Retry.

RELATED FILES:
  - internal/engine/warmup.go
  - internal/engine/dispatcher.go

MAINTENANCE:
  - Keep Retry generic; backend specifics belong to the callers.
*/

package engine

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a failing call is repeated.
// A call is attempted at most Retries+1 times.
type RetryPolicy struct {
	Retries int
	// Backoff returns the pause after failed attempt n (1-based).
	Backoff func(attempt int) time.Duration
	// OnFailure, when set, is told about every failed attempt.
	OnFailure func(attempt int, err error)
}

// Linear waits base*n after the n-th failure.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Constant waits d after every failure.
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Retry calls fn until it succeeds, the policy is exhausted or ctx is done.
// The bool is false when no attempt succeeded; the zero T is returned then.
// There is no pause after the final attempt.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}

	for attempt := 1; attempt <= retries+1; attempt++ {
		if ctx.Err() != nil {
			return zero, false
		}

		v, err := fn(ctx)
		if err == nil {
			return v, true
		}
		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}

		if attempt > retries || p.Backoff == nil {
			continue
		}
		if !sleep(ctx, p.Backoff(attempt)) {
			return zero, false
		}
	}
	return zero, false
}

// sleep waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
