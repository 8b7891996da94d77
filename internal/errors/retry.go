// Package errors provides retry utilities used inside backend adapters.
package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy defines retry behavior for a single backend's wire calls.
// Cross-backend fallback lives in the dispatcher, not here.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier.
	Multiplier float64

	// Jitter adds randomized jitter to avoid thundering herds.
	Jitter bool

	// RetryIf decides whether an error is worth retrying in place.
	RetryIf func(error) bool
}

// DefaultPolicy returns the policy remote adapters use for wire-level retries.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf: func(err error) bool {
			// Rate limits are not retried in place; the dispatcher moves
			// the call to another backend instead.
			return GetKind(err) == KindUnavailable
		},
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() *Policy {
	return &Policy{MaxAttempts: 1, RetryIf: func(error) bool { return false }}
}

// DoWithResult executes fn with retry logic, returning its result.
func DoWithResult[T any](ctx context.Context, policy *Policy, fn func() (T, error)) (T, error) {
	var zero T
	if policy == nil {
		policy = DefaultPolicy()
	}

	var result T
	var lastErr error
	delay := policy.InitialDelay

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
			if policy.Jitter {
				delay += time.Duration(rand.Float64() * float64(delay) * 0.1)
			}
		}

		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if policy.RetryIf != nil && !policy.RetryIf(lastErr) {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Do executes fn with retry logic.
func Do(ctx context.Context, policy *Policy, fn func() error) error {
	_, err := DoWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
