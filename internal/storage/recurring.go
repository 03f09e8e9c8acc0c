package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
)

// maxBatchIDs bounds the number of placeholders in a single IN clause.
const maxBatchIDs = 500

// MarkRecurring flags every id as recurring under groupID inside a single
// database transaction. All ids are checked first; if any is missing nothing
// is updated and a *common.MissingTransactionsError is returned.
func (s *SQLStorage) MarkRecurring(ctx context.Context, ids []string, frequency model.Frequency, groupID string) (int, error) {
	if err := validateMark(ctx, ids, frequency, groupID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := s.markRecurringTx(ctx, tx, ids, frequency, groupID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recurring mark: %w", classifyError(err))
	}
	return updated, nil
}

func (s *SQLStorage) markRecurringTx(ctx context.Context, q queryable, ids []string, frequency model.Frequency, groupID string) (int, error) {
	unique := uniqueIDs(ids)

	missing, err := s.missingIDs(ctx, q, unique)
	if err != nil {
		return 0, err
	}
	if len(missing) > 0 {
		return 0, &common.MissingTransactionsError{IDs: missing}
	}

	updated := 0
	for _, batch := range chunk(unique, maxBatchIDs) {
		args := make([]any, 0, len(batch)+3)
		args = append(args, true, string(frequency), groupID)
		for _, id := range batch {
			args = append(args, id)
		}

		result, err := q.ExecContext(ctx, s.dialect.rebind(`
			UPDATE transactions
			SET is_recurring = ?, recurring_pattern = ?, recurring_group_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id IN (`+placeholders(len(batch))+`)
		`), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to mark transactions: %w", classifyError(err))
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read update result: %w", err)
		}
		updated += int(affected)
	}

	// A row deleted by another session after the existence check leaves the
	// update short; the caller must roll back.
	if updated != len(unique) {
		missing, err := s.missingIDs(ctx, q, unique)
		if err != nil {
			return 0, err
		}
		if len(missing) == 0 {
			return 0, fmt.Errorf("marked %d of %d transactions: %w", updated, len(unique), common.ErrNotFound)
		}
		return 0, &common.MissingTransactionsError{IDs: missing}
	}

	slog.Debug("Marked recurring transactions",
		"group_id", groupID,
		"frequency", frequency,
		"count", updated)

	return updated, nil
}

// missingIDs returns the ids with no stored transaction, in input order.
func (s *SQLStorage) missingIDs(ctx context.Context, q queryable, ids []string) ([]string, error) {
	existing := make(map[string]bool, len(ids))
	for _, batch := range chunk(ids, maxBatchIDs) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := q.QueryContext(ctx,
			s.dialect.rebind("SELECT id FROM transactions WHERE id IN ("+placeholders(len(batch))+")"),
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to check transactions: %w", classifyError(err))
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan transaction id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to check transactions: %w", classifyError(err))
		}
		_ = rows.Close()
	}

	var missing []string
	for _, id := range ids {
		if !existing[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// UnmarkRecurringGroup clears the recurring flags of every transaction in
// groupID so they become detection candidates again.
func (s *SQLStorage) UnmarkRecurringGroup(ctx context.Context, groupID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return 0, err
	}
	return s.unmarkRecurringGroupTx(ctx, s.db, groupID)
}

func (s *SQLStorage) unmarkRecurringGroupTx(ctx context.Context, q queryable, groupID string) (int, error) {
	result, err := q.ExecContext(ctx, s.dialect.rebind(`
		UPDATE transactions
		SET is_recurring = ?, recurring_pattern = NULL, recurring_group_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE recurring_group_id = ?
	`), false, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to unmark group %s: %w", groupID, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("recurring group %s: %w", groupID, common.ErrNotFound)
	}
	return int(affected), nil
}

// GetRecurringGroups returns every marked group with its most recent
// transaction, ordered by group id.
func (s *SQLStorage) GetRecurringGroups(ctx context.Context) ([]model.RecurringGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRecurringGroupsTx(ctx, s.db)
}

func (s *SQLStorage) getRecurringGroupsTx(ctx context.Context, q queryable) ([]model.RecurringGroup, error) {
	txns, err := s.queryTransactions(ctx, q, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_recurring = ? AND recurring_group_id IS NOT NULL
		ORDER BY recurring_group_id ASC, date DESC, id DESC
	`, true)
	if err != nil {
		return nil, err
	}

	groups := []model.RecurringGroup{}
	for _, txn := range txns {
		n := len(groups)
		if n > 0 && groups[n-1].GroupID == txn.RecurringGroupID {
			groups[n-1].Count++
			continue
		}
		groups = append(groups, model.RecurringGroup{
			GroupID: txn.RecurringGroupID,
			Pattern: txn.RecurringPattern,
			Last:    txn,
			Count:   1,
		})
	}
	return groups, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for len(ids) > size {
		batches = append(batches, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}
