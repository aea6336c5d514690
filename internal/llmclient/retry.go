// Package llmclient wraps the Vertex AI Gemini chat API shared by the
// intent extractor and query planner: a thin transport type plus a retry wrapper
// for 429/RESOURCE_EXHAUSTED responses.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrRateLimited is returned when all retries are exhausted on a 429.
var ErrRateLimited = errors.New("llmclient: the model is experiencing high demand, try again shortly")

var retryConfig = struct {
	delays  []time.Duration
	ceiling time.Duration
}{
	delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	ceiling: 4 * time.Second,
}

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

// withRetry executes fn up to len(retryConfig.delays)+1 times, retrying on
// rate-limit errors with 500ms→1000ms→2000ms backoff capped at a 4s ceiling.
func withRetry[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !isRetryableError(err) {
		return result, err
	}

	for i, delay := range retryConfig.delays {
		if delay > retryConfig.ceiling {
			delay = retryConfig.ceiling
		}
		slog.Warn("llm rate limited, retrying",
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
			slog.Info("llm retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !isRetryableError(err) {
			return result, err
		}
	}

	slog.Error("llm retries exhausted", "operation", operation, "attempts", len(retryConfig.delays)+1)
	var zero T
	return zero, ErrRateLimited
}
