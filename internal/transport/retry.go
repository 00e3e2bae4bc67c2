package transport

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy reattempts transient failures: timeouts and the statuses in
// retryableStatus. Delay is a fixed pause between attempts. After MaxRetries
// reattempts the last failure is surfaced unchanged.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy matches the authority's documented contract: 3 retries,
// 1s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: time.Second}
}

// NoRetry disables reattempts.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Do runs fn up to 1+MaxRetries times. Non-retryable failures propagate
// immediately; context cancellation stops the loop between attempts.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			retriesTotal.Inc()
			logger.Warn("retrying request",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))

			timer := time.NewTimer(p.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
