package stream

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Retry Configuration
// ---------------------------------------------------------------------------

type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// calculateBackoff returns exponential backoff duration with jitter
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffMultiple, float64(attempt))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	// 80-100% of the computed backoff
	jitter := 0.8 + 0.2*rand.Float64()
	return time.Duration(backoff * jitter)
}

// retryWithBackoff runs fn until it succeeds, MaxAttempts is reached or ctx
// is done.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation string, fn func() error) error {
	logger := zap.L().Named("retry")
	attempts := max(config.MaxAttempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt-1, config)
			logger.Warn("retrying", zap.String("op", operation), zap.Int("attempt", attempt+1), zap.Int("max", attempts), zap.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info("succeeded", zap.String("op", operation), zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		logger.Warn("attempt failed", zap.String("op", operation), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
