package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leagueledger/backend/pkg/logger"
)

const (
	// rateLimitWait is the fixed wait applied after a quota rejection.
	// Exponential backoff is the wrong shape for quota windows: it is both too
	// slow for callers and too fast for the window reset.
	rateLimitWait = 2 * time.Second
	// rateLimitWaitCap bounds a server-provided Retry-After.
	rateLimitWaitCap = 30 * time.Second
)

// Outcome reports the terminal result of a retried operation.
type Outcome[R any] struct {
	Success  bool
	Result   R
	Err      error
	Attempts int
}

// RetryWithBackoff runs op up to Strategy.MaxRetries+1 times total, selecting
// the policy by operation type. Rate-limit rejections wait a fixed capped
// delay instead of the exponential schedule but still consume an attempt.
// Permanent rejections stop the schedule immediately.
func RetryWithBackoff[R any](ctx context.Context, reg *Registry, operationType string, op func(context.Context) (R, error), logg *logger.Logger) Outcome[R] {
	strategy := reg.Strategy(operationType)

	var lastErr error
	for attempt := 0; attempt <= strategy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return Outcome[R]{Success: true, Result: result, Attempts: attempt + 1}
		}
		lastErr = err

		// A permanent rejection cannot succeed on retry; stop immediately.
		if IsPermanentError(err) {
			if logg != nil {
				logCtx := logg.WithField(ctx, "operation_type", operationType)
				logg.Warn(logg.WithField(logCtx, "error", err.Error()), "operation rejected permanently, not retrying")
			}
			return Outcome[R]{
				Success:  false,
				Err:      fmt.Errorf("permanent failure after %d attempt(s): %w", attempt+1, err),
				Attempts: attempt + 1,
			}
		}

		if attempt == strategy.MaxRetries {
			break
		}

		var wait time.Duration
		if IsRateLimitError(err) {
			wait = rateLimitDelay(err)
		} else {
			wait = RetryDelay(attempt, strategy)
		}

		if logg != nil {
			fields := map[string]any{
				"operation_type": operationType,
				"attempt":        attempt + 1,
				"max_attempts":   strategy.MaxRetries + 1,
				"wait_ms":        wait.Milliseconds(),
				"rate_limited":   IsRateLimitError(err),
			}
			logCtx := logg.WithFields(ctx, fields)
			logg.Warn(logg.WithField(logCtx, "error", err.Error()), "operation failed, retrying")
		}

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	return Outcome[R]{
		Success:  false,
		Err:      formatExhausted(lastErr, strategy.MaxRetries+1),
		Attempts: strategy.MaxRetries + 1,
	}
}

func formatExhausted(lastErr error, attempts int) error {
	if IsRateLimitError(lastErr) {
		return fmt.Errorf("rate limit exceeded after %d attempts: %w", attempts, lastErr)
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func rateLimitDelay(err error) time.Duration {
	var provider retryAfterProvider
	if errors.As(err, &provider) {
		if after := provider.RetryAfter(); after > 0 {
			if after > rateLimitWaitCap {
				return rateLimitWaitCap
			}
			return after
		}
	}
	return rateLimitWait
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
