package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration. Statements must run
// unchanged on both SQLite and PostgreSQL.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					date TEXT NOT NULL,
					amount TEXT NOT NULL,
					description TEXT NOT NULL,
					counterpart_name TEXT,
					category TEXT,
					account_id TEXT,
					import_source TEXT,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add recurring transaction tracking",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN is_recurring BOOLEAN NOT NULL DEFAULT FALSE`,
				`ALTER TABLE transactions ADD COLUMN recurring_pattern TEXT`,
				`ALTER TABLE transactions ADD COLUMN recurring_group_id TEXT`,
				`ALTER TABLE transactions ADD COLUMN updated_at TIMESTAMP`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_is_recurring ON transactions(is_recurring)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_recurring_group ON transactions(recurring_group_id, date)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Add model-suggested category",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN llm_category TEXT`,
			)
		},
	},
	{
		Version:     4,
		Description: "Add detection run cache",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS pattern_runs (
					id TEXT PRIMARY KEY,
					payload TEXT NOT NULL,
					created_at BIGINT NOT NULL,
					expires_at BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_pattern_runs_created ON pattern_runs(created_at)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// SchemaVersion returns the currently applied schema version.
func (s *SQLStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := s.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	return s.schemaVersion(ctx, s.db)
}

// Migrate applies all pending database migrations.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if err := s.ensureVersionTable(ctx); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := s.schemaVersion(ctx, s.db)
	if err != nil {
		return err
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if execErr := s.setSchemaVersion(tx, migration.Version); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description,
			"driver", s.dialect.driver)
	}

	// Verify we're at the expected schema version
	finalVersion, err := s.schemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SQLite keeps the version in the database header; PostgreSQL gets a table.
func (s *SQLStorage) ensureVersionTable(ctx context.Context) error {
	if s.dialect.driver != DriverPostgres {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

func (s *SQLStorage) schemaVersion(ctx context.Context, q queryable) (int, error) {
	query := "PRAGMA user_version"
	if s.dialect.driver == DriverPostgres {
		query = "SELECT COALESCE(MAX(version), 0) FROM schema_version"
	}

	var version int
	if err := q.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStorage) setSchemaVersion(tx *sql.Tx, version int) error {
	if s.dialect.driver == DriverPostgres {
		_, err := tx.Exec(s.dialect.rebind("INSERT INTO schema_version (version) VALUES (?)"), version)
		return err
	}
	_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}
