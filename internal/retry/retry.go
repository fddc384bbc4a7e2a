// Package retry provides the bounded-retry combinator used around LLM
// calls and other fallible steps.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Do runs fn up to attempts times and returns its first success. Failed
// attempts are logged with the step name; when all attempts fail, the
// last error is returned wrapped with the attempt count.
func Do[T any](ctx context.Context, attempts int, step string, log *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		log.Warn("step failed", "step", step, "attempt", fmt.Sprintf("%d/%d", i, attempts), "error", err)
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", step, attempts, lastErr)
}

// Backoff returns the delay before the given zero-based attempt: base
// doubled per attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Sleep waits for the backoff delay or until the context is cancelled.
func Sleep(ctx context.Context, base time.Duration, attempt int) error {
	t := time.NewTimer(Backoff(base, attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
