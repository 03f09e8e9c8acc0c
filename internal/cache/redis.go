package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	// Addr is the Redis server address, e.g. "localhost:6379".
	Addr     string
	Username string
	Password string
	// KeyPrefix namespaces every key written by the cache.
	KeyPrefix    string
	DB           int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns the settings used when none are configured.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "finance:recurring:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCache stores runs as JSON strings in Redis with native expiry.
type RedisCache struct {
	client rueidis.Client
	config RedisConfig
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis: no address configured")
	}
	defaults := DefaultRedisConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      []string{config.Addr},
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		// Client side caching needs RESP3 tracking, which we never use.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisCache{client: client, config: config}, nil
}

func (r *RedisCache) runKey(id string) string {
	return r.config.KeyPrefix + "run:" + id
}

func (r *RedisCache) latestKey() string {
	return r.config.KeyPrefix + "latest"
}

// Put stores run and points the latest key at it. Both keys share the TTL.
func (r *RedisCache) Put(ctx context.Context, run Run, ttl time.Duration) error {
	if err := validateRun(run); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("redis put: failed to marshal: %w", err)
	}

	ttl = effectiveTTL(ttl)
	cmds := rueidis.Commands{
		r.client.B().Set().Key(r.runKey(run.ID)).Value(string(data)).Ex(ttl).Build(),
		r.client.B().Set().Key(r.latestKey()).Value(run.ID).Ex(ttl).Build(),
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("redis put: %w", err)
		}
	}

	return nil
}

// Get loads a run by id.
func (r *RedisCache) Get(ctx context.Context, runID string) (Run, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(r.runKey(runID)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return Run{}, fmt.Errorf("run %s: %w", runID, ErrCacheMiss)
		}
		return Run{}, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return Run{}, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("redis get: failed to unmarshal: %w", err)
	}
	return run, nil
}

// Latest follows the latest key to its run.
func (r *RedisCache) Latest(ctx context.Context) (Run, error) {
	id, err := r.client.Do(ctx, r.client.B().Get().Key(r.latestKey()).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return Run{}, fmt.Errorf("latest run: %w", ErrCacheMiss)
		}
		return Run{}, fmt.Errorf("redis latest: %w", err)
	}
	return r.Get(ctx, id)
}

// Close releases the client.
func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}
