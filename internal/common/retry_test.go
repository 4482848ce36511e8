package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "sqlite locked wrapped", err: fmt.Errorf("write: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "postgres serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "postgres deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "postgres unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "explicit retryable", err: &RetryableError{Err: errors.New("x"), Retryable: true}, want: true},
		{name: "canceled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			if calls < 3 {
				return sqlite3.Error{Code: sqlite3.ErrBusy}
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		permanent := errors.New("permanent")
		err := WithRetry(ctx, func() error {
			calls++
			return permanent
		}, opts)
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})
}
