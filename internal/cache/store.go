package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fascinih/finance-app/internal/common"
)

// RunStore persists serialized runs. storage.SQLStorage implements it.
type RunStore interface {
	SavePatternRun(ctx context.Context, id string, payload []byte, createdAt, expiresAt time.Time) error
	GetPatternRun(ctx context.Context, id string, now time.Time) ([]byte, error)
	LatestPatternRun(ctx context.Context, now time.Time) ([]byte, error)
	DeleteExpiredPatternRuns(ctx context.Context, now time.Time) (int, error)
}

// StoreCache keeps runs in the application database so that a run detected by
// one command can be applied by a later one without a Redis server.
type StoreCache struct {
	store RunStore
	now   func() time.Time
}

// NewStoreCache creates a database backed cache.
func NewStoreCache(store RunStore) *StoreCache {
	return &StoreCache{store: store, now: time.Now}
}

// Put serializes run and drops any expired runs.
func (s *StoreCache) Put(ctx context.Context, run Run, ttl time.Duration) error {
	if err := validateRun(run); err != nil {
		return err
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	now := s.now()
	if _, err := s.store.DeleteExpiredPatternRuns(ctx, now); err != nil {
		return fmt.Errorf("failed to prune expired runs: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if err := s.store.SavePatternRun(ctx, run.ID, payload, createdAt, now.Add(effectiveTTL(ttl))); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// Get loads a run by id.
func (s *StoreCache) Get(ctx context.Context, runID string) (Run, error) {
	payload, err := s.store.GetPatternRun(ctx, runID, s.now())
	if err != nil {
		return Run{}, s.mapError(fmt.Sprintf("run %s", runID), err)
	}
	return decodeRun(payload)
}

// Latest loads the newest unexpired run.
func (s *StoreCache) Latest(ctx context.Context) (Run, error) {
	payload, err := s.store.LatestPatternRun(ctx, s.now())
	if err != nil {
		return Run{}, s.mapError("latest run", err)
	}
	return decodeRun(payload)
}

// Close is a no-op; the store is owned by the caller.
func (s *StoreCache) Close() error {
	return nil
}

func (s *StoreCache) mapError(what string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrCacheMiss)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func decodeRun(payload []byte) (Run, error) {
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return run, nil
}
