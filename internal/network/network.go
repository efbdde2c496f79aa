// Package network provides bounded retry with backoff for transient remote
// errors.  It retries only errors that the classify package marks retryable
// and rate-limit errors from the Slack API; everything else is returned to
// the caller on the first attempt, because non-transient failures (a failed
// query, a missing channel) do not become successes by repetition.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rusq/slack"
	"golang.org/x/time/rate"

	"github.com/lakebridge/lakebridge/internal/classify"
)

// defNumAttempts is the default number of retry attempts.
const defNumAttempts = 3

// maxAllowedWaitTime is the maximum time to wait between attempts.
var maxAllowedWaitTime = 30 * time.Second

// waitFn returns the amount of time to wait before retrying depending on the
// current attempt.  This variable exists to reduce the test time.
var waitFn = expWait

// ErrRetryFailed is returned if the number of retry attempts exceeded the
// limit and the callback was unable to complete without errors.
var ErrRetryFailed = errors.New("callback was unable to complete without errors within the allowed number of retries")

// WithRetry runs the callback fn.  If fn returns a retryable error, it waits
// and calls it again, up to maxAttempts times.  lim, when non-nil, paces the
// attempts.  The context deadline cuts the waits short.
func WithRetry(ctx context.Context, lim *rate.Limiter, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defNumAttempts
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		cbErr := fn()
		if cbErr == nil {
			return nil
		}
		lastErr = cbErr

		var rle *slack.RateLimitedError
		switch {
		case errors.As(cbErr, &rle):
			slog.DebugContext(ctx, "rate limited, sleeping", "retry_after", rle.RetryAfter, "attempt", attempt+1)
			if err := sleepCtx(ctx, rle.RetryAfter); err != nil {
				return err
			}
			continue
		case classify.Retryable(cbErr):
			delay := waitFn(attempt)
			slog.DebugContext(ctx, "transient error, sleeping", "error", cbErr, "delay", delay, "attempt", attempt+1)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue
		}

		return fmt.Errorf("callback error: %w", cbErr)
	}
	return fmt.Errorf("%w: %w", ErrRetryFailed, lastErr)
}

// expWait returns an exponentially growing delay, capped at
// maxAllowedWaitTime.
func expWait(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxAllowedWaitTime {
		return maxAllowedWaitTime
	}
	return delay
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
