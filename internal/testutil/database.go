// Package testutil provides test databases and transaction fixtures shared
// by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/service"
	"github.com/fascinih/finance-app/internal/storage"
)

// TestDB represents a migrated test database.
type TestDB struct {
	Storage *storage.SQLStorage
	t       *testing.T
}

// SetupTestDB creates a new migrated in-memory SQLite database seeded with
// txns. It automatically handles cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewSeries(t, "netflix").Monthly(6).Build()...,
//	)
func SetupTestDB(t *testing.T, txns ...model.Transaction) *TestDB {
	t.Helper()

	return SetupTestDBWithOptions(t, TestDBOptions{Transactions: txns})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Transactions   []model.Transaction
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}

	if len(opts.Transactions) > 0 {
		db.MustSave(opts.Transactions...)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// MustSave inserts txns or fails the test.
func (db *TestDB) MustSave(txns ...model.Transaction) {
	db.t.Helper()

	if _, err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// MustGet loads a transaction by id or fails the test.
func (db *TestDB) MustGet(id string) *model.Transaction {
	db.t.Helper()

	txn, err := db.Storage.GetTransactionByID(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %s: %v", id, err)
	}
	return txn
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
