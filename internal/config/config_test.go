package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/cache"
	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/recurring"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath(), cfg.Database.Path)
	assert.Equal(t, cache.BackendDatabase, cfg.Cache.Backend)
	assert.Equal(t, cache.DefaultTTL, cfg.Cache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Daemon.Interval)
	assert.Equal(t, ":9090", cfg.Daemon.MetricsAddr)
	assert.Zero(t, cfg.Daemon.AutoMarkConfidence)

	opts := cfg.Detector.Options()
	defaults := recurring.DefaultOptions()
	assert.Equal(t, defaults.MinOccurrences, opts.MinOccurrences)
	assert.InDelta(t, defaults.SimilarityThreshold, opts.SimilarityThreshold, 1e-9)
	assert.InDelta(t, defaults.AmountTolerance, opts.AmountTolerance, 1e-9)
	assert.Equal(t, defaults.LookbackDays, opts.LookbackDays)
	assert.NotNil(t, opts.Now)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://finance@localhost/finance?sslmode=disable
cache:
  backend: redis
  ttl: 2h
  redis:
    addr: redis:6379
    db: 2
recurring:
  min_occurrences: 4
  amount_tolerance: 0.05
daemon:
  interval: 6h
  auto_mark_confidence: 0.9
`), 0o600))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres://finance@localhost/finance?sslmode=disable", cfg.Database.Source())
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 6*time.Hour, cfg.Daemon.Interval)
	assert.InDelta(t, 0.9, cfg.Daemon.AutoMarkConfidence, 1e-9)

	opts := cfg.Detector.Options()
	assert.Equal(t, 4, opts.MinOccurrences)
	assert.InDelta(t, 0.05, opts.AmountTolerance, 1e-9)
	// Unset keys keep their defaults
	assert.InDelta(t, 0.8, opts.SimilarityThreshold, 1e-9)

	settings := cfg.Cache.CacheSettings()
	assert.Equal(t, cache.BackendRedis, settings.Backend)
	assert.Equal(t, "redis:6379", settings.Redis.Addr)
	assert.Equal(t, 2, settings.Redis.DB)
	assert.Equal(t, "finance:recurring:", settings.Redis.KeyPrefix)
	assert.Equal(t, uint32(5), settings.Breaker.MaxFailures)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FINANCE_RECURRING_MIN_CONFIDENCE", "0.75")
	t.Setenv("FINANCE_DATABASE_PATH", "/tmp/finance-env.db")

	v := newViper()
	BindEnv(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cfg.Detector.MinConfidence, 1e-9)
	assert.Equal(t, "/tmp/finance-env.db", cfg.Database.Source())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		modify  func(*viper.Viper)
		name    string
	}{
		{
			name:   "defaults",
			modify: func(*viper.Viper) {},
		},
		{
			name:    "postgres without dsn",
			modify:  func(v *viper.Viper) { v.Set("database.driver", "postgres") },
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "unknown driver",
			modify:  func(v *viper.Viper) { v.Set("database.driver", "mysql") },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown cache backend",
			modify:  func(v *viper.Viper) { v.Set("cache.backend", "memcached") },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "redis without address",
			modify: func(v *viper.Viper) {
				v.Set("cache.backend", "redis")
				v.Set("cache.redis.addr", "")
			},
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "auto mark out of range",
			modify:  func(v *viper.Viper) { v.Set("daemon.auto_mark_confidence", 1.5) },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "detector options are validated",
			modify:  func(v *viper.Viper) { v.Set("recurring.min_occurrences", 1) },
			wantErr: common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			tt.modify(v)

			_, err := Load(v)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDatabaseConfig_SourceExpandsPath(t *testing.T) {
	t.Setenv("FINANCE_DATA", "/data")
	d := DatabaseConfig{Path: "$FINANCE_DATA/finance.db"}
	assert.Equal(t, "/data/finance.db", d.Source())
}
