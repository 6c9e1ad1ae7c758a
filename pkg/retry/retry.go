// Package retry implements jittered exponential backoff for transient
// failures.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls backoff behavior.
type Policy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth retrying. Nil retries
	// everything.
	Retryable func(error) bool
	// OnRetry is invoked before each retry sleep, with the 1-based attempt
	// number that just failed. Optional.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the standard HTTP retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
}

// Do runs fn under the policy. The last error is returned when all attempts
// fail. Context cancellation aborts immediately, during fn or between
// attempts, and is reported as the context error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// delay computes the full-jitter backoff for the given 1-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << (attempt - 1)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	//nolint:gosec // jitter does not need crypto randomness
	return time.Duration(rand.Int63n(int64(backoff)) + int64(backoff)/2)
}
