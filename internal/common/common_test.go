package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError(t *testing.T) {
	err := NewUserError("could not open the database", ErrNotFound)
	assert.Equal(t, "could not open the database: not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	bare := NewUserError("nothing to do", nil)
	assert.Equal(t, "nothing to do", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "cache unavailable", err: fmt.Errorf("get: %w", ErrCacheUnavailable), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "explicitly retryable", err: &RetryableError{Err: errors.New("busy"), Retryable: true}, want: true},
		{name: "explicitly final", err: &RetryableError{Err: errors.New("bad"), Retryable: false}, want: false},
		{name: "not found", err: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("locked"), Retryable: true}
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return ErrNotFound
		}, opts)
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return fmt.Errorf("redis: %w", ErrCacheUnavailable)
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
		require.ErrorIs(t, err, ErrCacheUnavailable)
		assert.Equal(t, 3, calls)
	})
}

func TestSetupLogger(t *testing.T) {
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogger(&buf, slog.LevelInfo, "json"))
	slog.Info("detected", "patterns", 2)
	assert.Contains(t, buf.String(), `"patterns":2`)

	err := SetupLogger(&buf, slog.LevelInfo, "xml")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("verbose")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMissingTransactionsError(t *testing.T) {
	err := fmt.Errorf("mark: %w", &MissingTransactionsError{IDs: []string{"a", "b"}})

	require.ErrorIs(t, err, ErrNotFound)

	var missing *MissingTransactionsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"a", "b"}, missing.IDs)
	assert.Contains(t, err.Error(), "2 transaction(s) not found: a, b")
}
