// Package vertexai adapts Google Vertex AI's embedding and Gemini generation
// APIs to the service-layer provider interfaces.
package vertexai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrRateLimited is returned when all retries are exhausted on a 429 response.
var ErrRateLimited = fmt.Errorf("the provider is experiencing high demand, try again shortly")

var retryDelays = []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond}

const retryCeiling = 4 * time.Second

// isRetryableError checks if an error is a 429 rate-limit error. Works for
// both SDK errors (which embed status codes in the message) and REST
// responses.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// withRetry executes fn up to maxRetries additional times beyond the first
// attempt, retrying only on rate-limit errors. Backoff follows retryDelays,
// capped at retryCeiling. maxRetries <= 0 disables retrying entirely.
func withRetry[T any](ctx context.Context, operation string, maxRetries int, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !isRetryableError(err) || maxRetries <= 0 {
		return result, err
	}

	attempts := maxRetries
	if attempts > len(retryDelays) {
		attempts = len(retryDelays)
	}

	for i := 0; i < attempts; i++ {
		delay := retryDelays[i]
		if delay > retryCeiling {
			delay = retryCeiling
		}

		slog.Warn("vertex AI rate limited, retrying",
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("vertex AI retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !isRetryableError(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("vertex AI retries exhausted", "operation", operation, "attempts", attempts+1)
	return zero, ErrRateLimited
}
