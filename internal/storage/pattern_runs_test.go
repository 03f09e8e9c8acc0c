package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/common"
)

func TestPatternRuns_SaveAndGet(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SavePatternRun(ctx, "run-1", []byte(`{"id":"run-1"}`), now, now.Add(time.Hour)))

	payload, err := store.GetPatternRun(ctx, "run-1", now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"run-1"}`, string(payload))

	// Saving again replaces the payload.
	require.NoError(t, store.SavePatternRun(ctx, "run-1", []byte(`{"id":"run-1","v":2}`), now, now.Add(time.Hour)))
	payload, err = store.GetPatternRun(ctx, "run-1", now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"run-1","v":2}`, string(payload))

	_, err = store.GetPatternRun(ctx, "run-1", now.Add(time.Hour))
	assert.ErrorIs(t, err, common.ErrNotFound, "expired runs are invisible")

	_, err = store.GetPatternRun(ctx, "missing", now)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPatternRuns_Latest(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.LatestPatternRun(ctx, now)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.SavePatternRun(ctx, "old", []byte("old"), now.Add(-2*time.Hour), now.Add(time.Hour)))
	require.NoError(t, store.SavePatternRun(ctx, "new", []byte("new"), now.Add(-time.Hour), now.Add(time.Hour)))
	require.NoError(t, store.SavePatternRun(ctx, "gone", []byte("gone"), now, now))

	payload, err := store.LatestPatternRun(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "new", string(payload))
}

func TestPatternRuns_DeleteExpired(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SavePatternRun(ctx, "a", []byte("a"), now, now.Add(-time.Minute)))
	require.NoError(t, store.SavePatternRun(ctx, "b", []byte("b"), now, now))
	require.NoError(t, store.SavePatternRun(ctx, "c", []byte("c"), now, now.Add(time.Minute)))

	deleted, err := store.DeleteExpiredPatternRuns(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetPatternRun(ctx, "c", now)
	assert.NoError(t, err)
}

func TestPatternRuns_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	assert.ErrorIs(t, store.SavePatternRun(ctx, " ", []byte("x"), now, now), ErrEmptyString)
	assert.ErrorIs(t, store.SavePatternRun(ctx, "id", nil, now, now), ErrEmptySlice)
	//nolint:staticcheck // nil context is what is being tested
	_, err := store.GetPatternRun(nil, "id", now)
	assert.ErrorIs(t, err, ErrNilContext)
}
