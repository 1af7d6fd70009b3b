package shared

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy describes a bounded exponential backoff with jitter. It is
// injected into the services that talk to external stores rather than
// inlined per call site.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NewRetryPolicy creates a retry policy with the given attempt bound and
// base delay, doubling per attempt up to maxDelay.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   maxAttempts,
		BaseDelay:     baseDelay,
		MaxDelay:      maxDelay,
		BackoffFactor: 2.0,
	}
}

// Backoff returns the delay before the given retry attempt (attempt >= 1),
// with up to 20% jitter to prevent thundering herd.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := time.Duration(rand.Float64() * 0.2 * float64(delay))
	return delay + jitter
}

// Do executes op, retrying transient failures with backoff until the
// attempt bound is reached. Non-retryable errors are returned immediately.
func (p RetryPolicy) Do(ctx context.Context, operation string, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Backoff(attempt - 1)

			logrus.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
				"error":     lastErr,
			}).Warn("Retrying operation after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				logrus.WithFields(logrus.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"operation":    operation,
		"max_attempts": p.MaxAttempts,
		"final_error":  lastErr,
	}).Error("Operation failed after all retry attempts")

	return lastErr
}
