package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fascinih/finance-app/internal/cache"
	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/recurring"
)

// Config is the typed view of the application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Detector DetectorConfig `mapstructure:"recurring"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the storage backend. Path is used by sqlite3, DSN
// by postgres.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// Source returns the driver specific data source.
func (d DatabaseConfig) Source() string {
	if d.DSN != "" {
		return d.DSN
	}
	return ExpandPath(d.Path)
}

// CacheConfig configures where detection runs are kept between commands.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	TTL     time.Duration `mapstructure:"ttl"`
	// BreakerFailures is the number of consecutive Redis failures that open
	// the circuit.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
	DB        int    `mapstructure:"db"`
}

// CacheSettings converts the section to cache.Config.
func (c CacheConfig) CacheSettings() cache.Config {
	redis := cache.DefaultRedisConfig()
	redis.Addr = c.Redis.Addr
	redis.Username = c.Redis.Username
	redis.Password = c.Redis.Password
	redis.DB = c.Redis.DB
	if c.Redis.KeyPrefix != "" {
		redis.KeyPrefix = c.Redis.KeyPrefix
	}

	breaker := cache.DefaultBreakerConfig()
	if c.BreakerFailures > 0 {
		breaker.MaxFailures = c.BreakerFailures
	}
	if c.BreakerTimeout > 0 {
		breaker.Timeout = c.BreakerTimeout
	}

	return cache.Config{
		Backend:         c.Backend,
		Redis:           redis,
		Breaker:         breaker,
		CleanupInterval: time.Minute,
	}
}

// DetectorConfig mirrors recurring.Options.
type DetectorConfig struct {
	MinOccurrences       int     `mapstructure:"min_occurrences"`
	SimilarityThreshold  float64 `mapstructure:"similarity_threshold"`
	CounterpartThreshold float64 `mapstructure:"counterpart_threshold"`
	AmountTolerance      float64 `mapstructure:"amount_tolerance"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	LookbackDays         int     `mapstructure:"lookback_days"`
	ForecastDays         int     `mapstructure:"forecast_days"`
	ForecastConfidence   float64 `mapstructure:"forecast_confidence"`
}

// Options converts the section to detector options.
func (d DetectorConfig) Options() recurring.Options {
	opts := recurring.DefaultOptions()
	opts.MinOccurrences = d.MinOccurrences
	opts.SimilarityThreshold = d.SimilarityThreshold
	opts.CounterpartThreshold = d.CounterpartThreshold
	opts.AmountTolerance = d.AmountTolerance
	opts.MinConfidence = d.MinConfidence
	opts.LookbackDays = d.LookbackDays
	opts.ForecastDays = d.ForecastDays
	opts.ForecastConfidence = d.ForecastConfidence
	return opts
}

// DaemonConfig configures periodic detection.
type DaemonConfig struct {
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Interval    time.Duration `mapstructure:"interval"`
	// AutoMarkConfidence marks patterns at or above it on every run; zero
	// only detects.
	AutoMarkConfidence float64 `mapstructure:"auto_mark_confidence"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	opts := recurring.DefaultOptions()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", DefaultDatabasePath())

	v.SetDefault("cache.backend", cache.BackendDatabase)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.breaker_failures", 5)
	v.SetDefault("cache.breaker_timeout", 30*time.Second)

	v.SetDefault("recurring.min_occurrences", opts.MinOccurrences)
	v.SetDefault("recurring.similarity_threshold", opts.SimilarityThreshold)
	v.SetDefault("recurring.counterpart_threshold", opts.CounterpartThreshold)
	v.SetDefault("recurring.amount_tolerance", opts.AmountTolerance)
	v.SetDefault("recurring.min_confidence", opts.MinConfidence)
	v.SetDefault("recurring.lookback_days", opts.LookbackDays)
	v.SetDefault("recurring.forecast_days", opts.ForecastDays)
	v.SetDefault("recurring.forecast_confidence", opts.ForecastConfidence)

	v.SetDefault("daemon.interval", 24*time.Hour)
	v.SetDefault("daemon.metrics_addr", ":9090")
	v.SetDefault("daemon.auto_mark_confidence", 0.0)
}

// EnvPrefix prefixes environment overrides, e.g. FINANCE_DATABASE_PATH.
const EnvPrefix = "FINANCE"

// BindEnv lets FINANCE_* environment variables override any key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3":
		if c.Database.Path == "" && c.Database.DSN == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for postgres", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "", cache.BackendDatabase, cache.BackendMemory:
	case cache.BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: cache.redis.addr", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", common.ErrInvalidConfig, c.Cache.Backend)
	}

	if c.Daemon.AutoMarkConfidence < 0 || c.Daemon.AutoMarkConfidence > 1 {
		return fmt.Errorf("%w: daemon.auto_mark_confidence must be in [0,1]", common.ErrInvalidConfig)
	}

	return c.Detector.Options().Validate()
}
