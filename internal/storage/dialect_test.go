package storage

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/fascinih/finance-app/internal/common"
)

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT id FROM transactions WHERE date >= ? AND is_recurring = ? LIMIT ?"

	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t,
		"SELECT id FROM transactions WHERE date >= $1 AND is_recurring = $2 LIMIT $3",
		postgresDialect.rebind(query))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunk(ids, 2))
	assert.Equal(t, [][]string{ids}, chunk(ids, 10))
	assert.Nil(t, chunk(nil, 2))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err       error
		name      string
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "plain error", err: errors.New("boom")},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, retryable: true},
		{name: "sqlite locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, retryable: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}},
		{name: "postgres serialization failure", err: &pq.Error{Code: "40001"}, retryable: true},
		{name: "postgres deadlock", err: &pq.Error{Code: "40P01"}, retryable: true},
		{name: "postgres connection failure", err: &pq.Error{Code: "08006"}, retryable: true},
		{name: "postgres unique violation", err: &pq.Error{Code: "23505"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.retryable, common.IsRetryable(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
