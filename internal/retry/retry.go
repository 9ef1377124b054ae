// Package retry provides a small retry policy for calls to upstream APIs.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how an operation is retried. The zero value is not
// usable; construct one with NewPolicy or fill in every field.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff returns the delay before the given attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable reports whether the operation should be tried again
	// after the given error. Errors marked with Permanent are never
	// retried regardless of this predicate.
	Retryable func(err error) bool
}

// NewPolicy returns a policy with bounded linear-growth backoff:
// attempt n waits n*base before running.
func NewPolicy(maxAttempts int, base time.Duration, retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * base
		},
		Retryable: retryable,
	}
}

// Do runs op until it succeeds, the policy is exhausted, a permanent error
// is returned, or ctx is cancelled during a backoff wait.
func (p Policy) Do(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled after %d attempts: %w", attempt-1, lastErr)
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}
