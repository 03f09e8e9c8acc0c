package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fascinih/finance-app/internal/common"
)

// SavePatternRun stores a serialized detection run, replacing any run with the
// same id. Times are stored as Unix nanoseconds.
func (s *SQLStorage) SavePatternRun(ctx context.Context, id string, payload []byte, createdAt, expiresAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "run id"); err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload", ErrEmptySlice)
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO pattern_runs (id, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`), id, string(payload), createdAt.UnixNano(), expiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save pattern run: %w", classifyError(err))
	}
	return nil
}

// GetPatternRun returns the payload of an unexpired run.
func (s *SQLStorage) GetPatternRun(ctx context.Context, id string, now time.Time) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "run id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT payload FROM pattern_runs
		WHERE id = ? AND expires_at > ?
	`), id, now.UnixNano())
	return scanPayload(row, "pattern run "+id)
}

// LatestPatternRun returns the payload of the newest unexpired run.
func (s *SQLStorage) LatestPatternRun(ctx context.Context, now time.Time) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT payload FROM pattern_runs
		WHERE expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`), now.UnixNano())
	return scanPayload(row, "latest pattern run")
}

// DeleteExpiredPatternRuns removes runs whose expiry is not after now.
func (s *SQLStorage) DeleteExpiredPatternRuns(ctx context.Context, now time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		s.dialect.rebind("DELETE FROM pattern_runs WHERE expires_at <= ?"),
		now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pattern runs: %w", classifyError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted pattern runs: %w", err)
	}
	return int(deleted), nil
}

func scanPayload(row *sql.Row, what string) ([]byte, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %s: %w", what, classifyError(err))
	}
	return []byte(payload), nil
}
