package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fascinih/finance-app/internal/model"
)

// MemoryCache keeps runs in process memory. Expired runs are dropped lazily
// and by a background sweep.
type MemoryCache struct {
	runs     map[string]memoryEntry
	now      func() time.Time
	stopCh   chan struct{}
	latestID string
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

type memoryEntry struct {
	expiresAt time.Time
	run       Run
}

// NewMemoryCache creates a memory cache that sweeps expired runs every
// cleanupInterval. A non-positive interval disables the sweep.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		runs:   make(map[string]memoryEntry),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

// Put stores a copy of run.
func (c *MemoryCache) Put(_ context.Context, run Run, ttl time.Duration) error {
	if err := validateRun(run); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs[run.ID] = memoryEntry{
		run:       copyRun(run),
		expiresAt: c.now().Add(effectiveTTL(ttl)),
	}
	c.latestID = run.ID

	return nil
}

// Get returns a copy of the run.
func (c *MemoryCache) Get(_ context.Context, runID string) (Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.runs[runID]
	if !ok || !c.now().Before(entry.expiresAt) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrCacheMiss)
	}
	return copyRun(entry.run), nil
}

// Latest returns the most recently stored run.
func (c *MemoryCache) Latest(ctx context.Context) (Run, error) {
	c.mu.RLock()
	latest := c.latestID
	c.mu.RUnlock()

	if latest == "" {
		return Run{}, fmt.Errorf("latest run: %w", ErrCacheMiss)
	}
	return c.Get(ctx, latest)
}

// Close stops the background sweep.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	return nil
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes expired runs.
func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.runs {
		if !now.Before(entry.expiresAt) {
			delete(c.runs, id)
		}
	}
}

func copyRun(run Run) Run {
	patterns := make([]model.RecurringPattern, len(run.Patterns))
	for i, p := range run.Patterns {
		p.TransactionIDs = append([]string(nil), p.TransactionIDs...)
		patterns[i] = p
	}
	run.Patterns = patterns
	return run
}
