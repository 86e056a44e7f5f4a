package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragpdf/internal/domain"
)

// Policy controls exponential backoff for transient provider failures.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Logger receives retry lines; nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultPolicy matches the defaults in the configuration file.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the wait before the retry that follows the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-transient error, or the attempt limit is hit.
// Exhausting the limit returns a fatal ProviderError wrapping domain.ErrRetriesExhausted and the
// last failure. Context cancellation is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := p.Delay(attempt - 1)
			logger.Debug("retrying provider call", "op", op, "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if !domain.IsTransient(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, domain.NewFatalError(op, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempts, lastErr))
}
