package llm

import (
	"context"
	"time"
)

const rateLimitRetries = 2

// withRetry re-runs fn after a rate-limit response, with exponential
// backoff. Any other failure is returned as-is; generic errors are never
// retried.
func withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	delay := time.Second
	for attempt := 0; ; attempt++ {
		out, err := fn()
		if err == nil || !RateLimited(err) || attempt >= rateLimitRetries {
			return out, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
