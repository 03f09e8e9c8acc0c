package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fascinih/finance-app/internal/common"
)

// BreakerConfig tunes the circuit breaker placed in front of a remote cache.
type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// HalfOpenRequests is how many probes are allowed while half-open.
	HalfOpenRequests uint32
	// Interval clears failure counts while closed. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "pattern-cache",
		MaxFailures:      5,
		HalfOpenRequests: 1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// BreakerCache guards another PatternCache with a circuit breaker. Cache misses
// are treated as successful calls. While the circuit is open every call fails
// fast with common.ErrCacheUnavailable.
type BreakerCache struct {
	next PatternCache
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerCache wraps next.
func NewBreakerCache(next PatternCache, config BreakerConfig) *BreakerCache {
	defaults := DefaultBreakerConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = defaults.HalfOpenRequests
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsMiss(err) || errors.Is(err, ErrInvalidRun)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Cache circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &BreakerCache{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// State reports the breaker state.
func (b *BreakerCache) State() gobreaker.State {
	return b.cb.State()
}

// Put stores run through the breaker.
func (b *BreakerCache) Put(ctx context.Context, run Run, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Put(ctx, run, ttl)
	})
	return b.mapError(err)
}

// Get loads a run through the breaker.
func (b *BreakerCache) Get(ctx context.Context, runID string) (Run, error) {
	return b.load(func() (Run, error) { return b.next.Get(ctx, runID) })
}

// Latest loads the latest run through the breaker.
func (b *BreakerCache) Latest(ctx context.Context) (Run, error) {
	return b.load(func() (Run, error) { return b.next.Latest(ctx) })
}

// Close closes the wrapped cache.
func (b *BreakerCache) Close() error {
	return b.next.Close()
}

func (b *BreakerCache) load(fn func() (Run, error)) (Run, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return Run{}, b.mapError(err)
	}
	return result.(Run), nil
}

func (b *BreakerCache) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit %s is %s", common.ErrCacheUnavailable, b.cb.Name(), b.cb.State())
	}
	return err
}
