package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/common"
)

var errBackendDown = errors.New("connection refused")

// flakyCache fails every call while down is set.
type flakyCache struct {
	*MemoryCache
	calls int
	down  bool
}

func (f *flakyCache) Get(ctx context.Context, runID string) (Run, error) {
	f.calls++
	if f.down {
		return Run{}, errBackendDown
	}
	return f.MemoryCache.Get(ctx, runID)
}

func (f *flakyCache) Put(ctx context.Context, run Run, ttl time.Duration) error {
	f.calls++
	if f.down {
		return errBackendDown
	}
	return f.MemoryCache.Put(ctx, run, ttl)
}

func newFlaky() *flakyCache {
	return &flakyCache{MemoryCache: NewMemoryCache(0)}
}

func TestBreakerCache_PassesThrough(t *testing.T) {
	backend := newFlaky()
	b := NewBreakerCache(backend, BreakerConfig{})
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, testRun("r1"), time.Hour))

	run, err := b.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", run.ID)

	run, err = b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", run.ID)
}

func TestBreakerCache_MissesDoNotTrip(t *testing.T) {
	b := NewBreakerCache(newFlaky(), BreakerConfig{MaxFailures: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.Get(ctx, "missing")
		require.True(t, IsMiss(err))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerCache_OpensAfterFailures(t *testing.T) {
	backend := newFlaky()
	backend.down = true
	b := NewBreakerCache(backend, BreakerConfig{MaxFailures: 3, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Get(ctx, "r1")
		require.ErrorIs(t, err, errBackendDown)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Open circuit fails fast without reaching the backend.
	_, err := b.Get(ctx, "r1")
	require.ErrorIs(t, err, common.ErrCacheUnavailable)
	assert.True(t, common.IsRetryable(err))

	err = b.Put(ctx, testRun("r1"), time.Hour)
	require.ErrorIs(t, err, common.ErrCacheUnavailable)
	assert.Equal(t, 3, backend.calls)
}

func TestBreakerCache_RecoversAfterTimeout(t *testing.T) {
	backend := newFlaky()
	backend.down = true
	b := NewBreakerCache(backend, BreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := b.Get(ctx, "r1")
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, b.State())

	backend.down = false
	require.Eventually(t, func() bool {
		return b.State() == gobreaker.StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Put(ctx, testRun("r1"), time.Hour))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
