// Package retry provides an injectable exponential-backoff helper used,
// through internal/transport, by the bucket, results and pipelines
// manager clients. The object-store archive backend does not retry.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential-backoff retry schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Retryable decides whether err should trigger another attempt.
	// A nil Retryable treats every non-nil error as retryable.
	Retryable func(err error) bool
}

// DefaultPolicy backs off starting at 1s, doubling up to a 32s cap,
// for at most 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    32 * time.Second,
		Multiplier:  2,
	}
}

// ErrFinal wraps an error that must not be retried regardless of the
// policy's Retryable predicate (e.g. a 4xx response).
type ErrFinal struct {
	Err error
}

func (e *ErrFinal) Error() string { return e.Err.Error() }
func (e *ErrFinal) Unwrap() error { return e.Err }

// Final marks err as non-retryable.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &ErrFinal{Err: err}
}

// Do runs fn, retrying per p until it succeeds, the context is
// cancelled, attempts are exhausted, or fn returns a *ErrFinal /
// an error p.Retryable rejects.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var final *ErrFinal
		if errors.As(err, &final) {
			return final.Err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		wait := jitter(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

// jitter adds up to 20% random jitter to avoid thundering-herd retries
// across many runner processes hitting the same bucket service.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.2
	return d + time.Duration(rand.Float64()*spread)
}
