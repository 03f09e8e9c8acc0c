// Package service defines the interfaces shared by the application layers.
package service

import (
	"context"
	"time"

	"github.com/fascinih/finance-app/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	RecurringOnly bool
	Limit         int
	Offset        int
}

// TransactionWriter groups the operations that modify transactions.
type TransactionWriter interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	MarkRecurring(ctx context.Context, ids []string, frequency model.Frequency, groupID string) (int, error)
	UnmarkRecurringGroup(ctx context.Context, groupID string) (int, error)
}

// TransactionReader groups the read-only transaction queries.
type TransactionReader interface {
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetCandidateTransactions(ctx context.Context, cutoff time.Time) ([]model.Transaction, error)
	GetRecurringGroups(ctx context.Context) ([]model.RecurringGroup, error)
	GetTransactionCount(ctx context.Context) (int, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionReader
	TransactionWriter

	// Database management
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	TransactionReader
	TransactionWriter
}
