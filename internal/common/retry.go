package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry executes an operation, retrying errors that IsRetryable accepts
// with exponential backoff.
func WithRetry(ctx context.Context, operation func() error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 50 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 2 * time.Second
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			return operation()
		},
		retry.Context(ctx),
		retry.Attempts(uint(opts.MaxAttempts)),
		retry.Delay(opts.InitialDelay),
		retry.MaxDelay(opts.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Operation failed, retrying",
				"attempt", n+1,
				"max_attempts", opts.MaxAttempts,
				"error", err)
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if attempts >= opts.MaxAttempts && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempts, err)
	}
	return err
}
