package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/go-github/v75/github"
)

// Retry constants.
const (
	maxRetryAttempts  = 8
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 2 * time.Minute
)

// call waits on the rate limiter, then executes fn with exponential backoff
// and jitter. Only transient outcomes are retried; whatever survives the
// retries is fatal for the current run.
func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	if err := c.l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(maxRetryAttempts),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(initialRetryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "operation", operation, "attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode >= 500
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "EOF")
}
