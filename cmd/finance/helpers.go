package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fascinih/finance-app/internal/cache"
	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/recurring"
	"github.com/fascinih/finance-app/internal/storage"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLStorage, error) {
	db := appConfig.Database

	store, err := storage.Open(db.Driver, db.Source())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// newDetector builds a detector from the configured options after applying
// command line overrides.
func newDetector(store recurring.Store, override func(*recurring.Options)) (*recurring.Detector, error) {
	opts := appConfig.Detector.Options()
	if override != nil {
		override(&opts)
	}

	detector, err := recurring.NewDetector(store, opts)
	if err != nil {
		return nil, common.NewUserError("invalid detector settings", err)
	}
	return detector, nil
}

// initCache opens the configured run cache. store backs the database backend.
func initCache(store cache.RunStore) (cache.PatternCache, error) {
	c, err := cache.New(appConfig.Cache.CacheSettings(), store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern cache: %w", err)
	}
	return c, nil
}

func closeQuietly(name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", name, "error", err)
	}
}
