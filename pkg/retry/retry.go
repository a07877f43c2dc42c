// Package retry runs an operation a bounded number of times with jittered
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// maxBackoff bounds the doubled delay as a multiple of baseDelay.
const maxBackoff = 32

// Do calls fn up to maxAttempts times. baseDelay doubles after each failed
// attempt, up to maxBackoff times baseDelay, with +-25% jitter. Context
// cancellation during a backoff wins.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}

		if attempt == maxAttempts-1 {
			break
		}

		sleep := delay
		if jitter := int64(delay / 4); jitter > 0 {
			sleep = delay - time.Duration(jitter) + time.Duration(rand.Int63n(2*jitter+1))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		if delay < baseDelay*maxBackoff {
			delay *= 2
		}
	}

	return err
}
