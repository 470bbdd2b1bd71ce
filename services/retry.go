package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockverse/observability"
)

// ErrPermanent marks an error that WithRetry must not retry
var ErrPermanent = errors.New("permanent failure")

// RetryConfig controls WithRetry's attempt count and exponential backoff
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used for startup dependencies such as the database
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// Permanent wraps err so WithRetry returns it without further attempts
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// WithRetry calls fn until it succeeds, returns a Permanent error,
// the context ends, or MaxRetries retries have failed.
func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}

		lastErr = err
		if attempt < config.MaxRetries {
			observability.Warn("retry attempt failed",
				"attempt", attempt+1,
				"max_retries", config.MaxRetries,
				"error", err)
		}
	}

	return fmt.Errorf("failed after %d retries: %w", config.MaxRetries, lastErr)
}
