package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/service"
)

const transactionColumns = `id, hash, date, amount, description, counterpart_name,
	category, llm_category, account_id, import_source,
	is_recurring, recurring_pattern, recurring_group_id`

// SaveTransactions saves multiple transactions to the database. Transactions
// whose id or hash already exists are skipped; the number inserted is returned.
func (s *SQLStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.saveTransactionsTx(ctx, tx, transactions)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", classifyError(err))
	}
	return inserted, nil
}

func (s *SQLStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO transactions (
			id, hash, date, amount, description, counterpart_name,
			category, llm_category, account_id, import_source,
			is_recurring, recurring_pattern, recurring_group_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		// Generate hash if not already set
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		result, err := stmt.ExecContext(ctx,
			txn.ID,
			txn.Hash,
			txn.Date.Format(model.DateLayout),
			txn.Amount.String(),
			txn.Description,
			nullString(txn.CounterpartName),
			nullString(txn.Category),
			nullString(txn.LLMCategory),
			nullString(txn.AccountID),
			nullString(txn.ImportSource),
			txn.IsRecurring,
			nullString(txn.RecurringPattern),
			nullString(txn.RecurringGroupID),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, classifyError(err))
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read insert result: %w", err)
		}
		inserted += int(affected)
	}

	return inserted, nil
}

// GetTransactionByID retrieves a single transaction by ID.
func (s *SQLStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionByIDTx(ctx, s.db, id)
}

func (s *SQLStorage) getTransactionByIDTx(ctx context.Context, q queryable, id string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ?
	`), id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// GetTransactions retrieves transactions matching the filter, oldest first.
func (s *SQLStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateFilter(ctx, filter); err != nil {
		return nil, err
	}
	return s.getTransactionsTx(ctx, s.db, filter)
}

func (s *SQLStorage) getTransactionsTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.Transaction, error) {
	var conditions []string
	var args []any

	if filter.StartDate != nil {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.StartDate.Format(model.DateLayout))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.EndDate.Format(model.DateLayout))
	}
	if filter.RecurringOnly {
		conditions = append(conditions, "is_recurring = ?")
		args = append(args, true)
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return s.queryTransactions(ctx, q, query, args...)
}

// GetCandidateTransactions returns transactions dated on or after cutoff that
// are not yet marked recurring, in date order.
func (s *SQLStorage) GetCandidateTransactions(ctx context.Context, cutoff time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCandidateTransactionsTx(ctx, s.db, cutoff)
}

func (s *SQLStorage) getCandidateTransactionsTx(ctx context.Context, q queryable, cutoff time.Time) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, q, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE date >= ? AND is_recurring = ?
		ORDER BY date ASC, id ASC
	`, cutoff.Format(model.DateLayout), false)
}

// GetTransactionCount returns the total number of stored transactions.
func (s *SQLStorage) GetTransactionCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.getTransactionCountTx(ctx, s.db)
}

func (s *SQLStorage) getTransactionCountTx(ctx context.Context, q queryable) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", classifyError(err))
	}
	return count, nil
}

func (s *SQLStorage) queryTransactions(ctx context.Context, q queryable, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classifyError(err))
	}
	defer func() { _ = rows.Close() }()

	transactions := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", classifyError(err))
	}
	return transactions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads one row selected with transactionColumns.
func scanTransaction(row scanner) (model.Transaction, error) {
	var txn model.Transaction
	var date, amount string
	var counterpart, category, llmCategory, accountID, importSource sql.NullString
	var pattern, groupID sql.NullString

	err := row.Scan(
		&txn.ID,
		&txn.Hash,
		&date,
		&amount,
		&txn.Description,
		&counterpart,
		&category,
		&llmCategory,
		&accountID,
		&importSource,
		&txn.IsRecurring,
		&pattern,
		&groupID,
	)
	if err != nil {
		return model.Transaction{}, err
	}

	txn.Date, err = time.Parse(model.DateLayout, date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: transaction %s has date %q", common.ErrDatabaseCorrupted, txn.ID, date)
	}
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: transaction %s has amount %q", common.ErrDatabaseCorrupted, txn.ID, amount)
	}

	txn.CounterpartName = counterpart.String
	txn.Category = category.String
	txn.LLMCategory = llmCategory.String
	txn.AccountID = accountID.String
	txn.ImportSource = importSource.String
	txn.RecurringPattern = pattern.String
	txn.RecurringGroupID = groupID.String

	return txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// queryable is implemented by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
