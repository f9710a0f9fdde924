// Package retry provides bounded retry with exponential backoff for
// network operations. It is a pure backoff policy with no knowledge of
// what the wrapped operation does.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// sleep is injected by tests.
var sleep = sleepCtx

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do invokes op up to maxAttempts times. After each failure it sleeps
// baseDelay * 2^attempt plus up to one second of jitter, then retries.
// The last failure is returned once attempts are exhausted.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay*(1<<attempt) + time.Duration(rand.Float64()*float64(time.Second))
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
	}

	return lastErr
}
