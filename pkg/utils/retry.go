package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flexsearch-service/pkg/logger"
)

// RetryConfig holds the parameters for the retry strategy
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      logger.Logger

	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of attempt+1
	OnRetry func(attempt int, err error)
}

// Do runs fn with exponential back-off. The delay starts at BaseDelay and doubles
// after every failed attempt. Waiting stops early when ctx is done.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		if r.Logger != nil {
			r.Logger.Warn("Retrying after failure",
				"operation", operationName,
				"attempt", attempt,
				"maxAttempts", maxAttempts,
				"delay", delay.String(),
				"error", lastErr)
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, lastErr)
		}

		if err := Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s interrupted after %d attempts: %w", operationName, attempt, errors.Join(lastErr, err))
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// Sleep pauses for d or until ctx is done. A non-positive d returns immediately.
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
