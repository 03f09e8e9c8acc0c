package storage

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/fascinih/finance-app/internal/common"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the SQL differences between the supported drivers.
// Queries are written with ? placeholders and rebound when needed.
type dialect struct {
	driver   string
	numbered bool // $1, $2, ... placeholders
}

var (
	sqliteDialect   = dialect{driver: DriverSQLite}
	postgresDialect = dialect{driver: DriverPostgres, numbered: true}
)

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// classifyError marks lock contention and dropped connections as retryable
// so batch callers can back off and try again.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40", // transaction rollback: serialization failure, deadlock
			"08", // connection exception
			"57": // operator intervention: admin shutdown, cannot connect now
			return &common.RetryableError{Err: err, Retryable: true}
		}
	}

	return err
}
