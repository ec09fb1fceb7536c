// Package retry runs startup operations with exponential backoff.
// Reconciliation cycles never retry; they wait for the next scheduled run.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int           // Maximum number of attempts, including the first
	InitialDelay  time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Cap for any single delay
	Multiplier    float64       // Exponential backoff multiplier
	JitterEnabled bool          // Randomize delays by up to 25%
}

// DefaultRetryConfig returns a default retry configuration
// Pattern: 1s, 2s, 4s, 8s, max 30s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, attempts run out or ctx is done.
// Errors that apperrors.IsRetryable rejects end the loop at once.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, operation string, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx).WithField("operation", operation)
	startTime := time.Now()

	result := &RetryResult{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)

			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err

		if !apperrors.IsRetryable(err) {
			logger.WithError(err).WithField("attempts", attempt).Error("Operation failed with a permanent error")
			break
		}

		if attempt >= config.MaxAttempts {
			logger.WithError(err).WithField("attempts", attempt).Error("Operation failed after max retry attempts")
			break
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)

		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped and optionally jittered
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.JitterEnabled {
		jitter := delay * 0.25 * rand.Float64() // #nosec G404 - jitter does not need crypto randomness
		delay -= jitter
	}

	return time.Duration(delay)
}

// WithRetry retries fn with the default configuration
func WithRetry(ctx context.Context, operation string, fn RetryFunc) error {
	result := WithExponentialBackoff(ctx, DefaultRetryConfig(), operation, fn)
	if !result.Success {
		return fmt.Errorf("%s failed after %d attempts: %w", operation, result.Attempts, result.LastError)
	}
	return nil
}
