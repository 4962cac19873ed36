package util

import (
	"context"
	"time"
)

// Backoff is a fixed escalating delay schedule.
//
// Delays[i] is waited before attempt i+2. When there are more attempts than
// delays the last delay repeats.
type Backoff struct {
	Delays      []time.Duration
	MaxAttempts int
	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultBackoff waits 15s, 30s and 60s between attempts, three attempts in total.
func DefaultBackoff() Backoff {
	return Backoff{
		Delays:      []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second},
		MaxAttempts: 3,
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	if len(b.Delays) == 0 {
		return 0
	}
	if attempt-1 < len(b.Delays) {
		return b.Delays[attempt-1]
	}
	return b.Delays[len(b.Delays)-1]
}

// RetryWithBackoff runs fn on the schedule of b. It returns the result, the
// number of attempts made and the last error. Non-retryable errors and
// cancellation of ctx stop immediately. A deadline error from fn itself,
// such as a per-request client timeout, is left to Retryable.
func RetryWithBackoff[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, int, error) {
	maxAttempts := b.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, attempt - 1, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, attempt, err
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return zero, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		wait := b.delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, attempt, err
		}
	}
	return zero, maxAttempts, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
