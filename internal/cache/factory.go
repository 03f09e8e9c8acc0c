package cache

import (
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend string
	Redis   RedisConfig
	Breaker BreakerConfig
	// CleanupInterval is the sweep period of the memory backend.
	CleanupInterval time.Duration
}

// New builds the configured cache. The database backend needs store; the
// redis backend is wrapped in a circuit breaker.
func New(config Config, store RunStore) (PatternCache, error) {
	switch strings.ToLower(strings.TrimSpace(config.Backend)) {
	case "", BackendDatabase:
		if store == nil {
			return nil, fmt.Errorf("cache backend %q requires a run store", BackendDatabase)
		}
		return NewStoreCache(store), nil
	case BackendMemory:
		return NewMemoryCache(config.CleanupInterval), nil
	case BackendRedis:
		redis, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, err
		}
		return NewBreakerCache(redis, config.Breaker), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
