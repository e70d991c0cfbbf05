package api

import (
	"context"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/logging"
)

// ExecuteWithRetry runs fn up to the client's attempt limit with a fixed
// delay between attempts. Non-retryable errors and cancellation return
// immediately. The callback receives the 1-based attempt number.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, remotePath string, fn func(attempt int) (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithContext(ctx)
	start := time.Now()

	for attempt := 1; attempt <= client.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, errors.ClassifyTransportError(errors.OpFetch, remotePath, err, logger)
		}
		if attempt > 1 {
			logger.Debug("Retrying transfer",
				logging.F("path", remotePath),
				logging.F("attempt", attempt),
				logging.F("maxAttempts", client.maxRetries),
			)
		}

		result, lastErr = fn(attempt)
		if lastErr == nil {
			logger.Debug("Transfer completed",
				logging.F("path", remotePath),
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt),
			)
			return result, nil
		}

		if errors.IsCancelled(lastErr) || !errors.IsRetryable(lastErr) {
			return result, lastErr
		}

		if attempt < client.maxRetries {
			logger.Warn("Transfer failed (retryable)",
				logging.F("path", remotePath),
				logging.F("attempt", attempt),
				logging.F("delay_ms", client.retryDelay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			timer := time.NewTimer(client.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, errors.ClassifyTransportError(errors.OpFetch, remotePath, ctx.Err(), logger)
			case <-timer.C:
			}
		}
	}

	logger.Error("Transfer failed after max retries",
		logging.F("path", remotePath),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries),
		logging.F("error", lastErr.Error()),
	)
	return result, lastErr
}
