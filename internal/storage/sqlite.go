package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLStorage implements service.Storage on top of database/sql. The same
// queries serve SQLite and PostgreSQL.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	dsn     string
}

var _ service.Storage = (*SQLStorage)(nil)

// Open connects to the database for the named driver.
func Open(driver, dsn string) (*SQLStorage, error) {
	switch driver {
	case DriverSQLite, "sqlite", "":
		return NewSQLiteStorage(dsn)
	case DriverPostgres, "postgresql":
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	// Validate input
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:      db,
		dialect: sqliteDialect,
		dsn:     dbPath,
	}, nil
}

// NewPostgresStorage creates a storage instance backed by PostgreSQL.
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:      db,
		dialect: postgresDialect,
		dsn:     dsn,
	}, nil
}

// Driver returns the database/sql driver name in use.
func (s *SQLStorage) Driver() string {
	return s.dialect.driver
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	return &sqlTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqlTransaction wraps sql.Tx to implement service.Transaction.
type sqlTransaction struct {
	tx      *sql.Tx
	storage *SQLStorage
}

func (t *sqlTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqlTransaction) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}
	return t.storage.saveTransactionsTx(ctx, t.tx, transactions)
}

func (t *sqlTransaction) MarkRecurring(ctx context.Context, ids []string, frequency model.Frequency, groupID string) (int, error) {
	if err := validateMark(ctx, ids, frequency, groupID); err != nil {
		return 0, err
	}
	return t.storage.markRecurringTx(ctx, t.tx, ids, frequency, groupID)
}

func (t *sqlTransaction) UnmarkRecurringGroup(ctx context.Context, groupID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return 0, err
	}
	return t.storage.unmarkRecurringGroupTx(ctx, t.tx, groupID)
}

func (t *sqlTransaction) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getTransactionByIDTx(ctx, t.tx, id)
}

func (t *sqlTransaction) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateFilter(ctx, filter); err != nil {
		return nil, err
	}
	return t.storage.getTransactionsTx(ctx, t.tx, filter)
}

func (t *sqlTransaction) GetCandidateTransactions(ctx context.Context, cutoff time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCandidateTransactionsTx(ctx, t.tx, cutoff)
}

func (t *sqlTransaction) GetRecurringGroups(ctx context.Context) ([]model.RecurringGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getRecurringGroupsTx(ctx, t.tx)
}

func (t *sqlTransaction) GetTransactionCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.getTransactionCountTx(ctx, t.tx)
}
