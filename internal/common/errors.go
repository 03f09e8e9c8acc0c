// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Detection errors.
	ErrNoTransactions = errors.New("no transactions to analyze")
	ErrEmptyPattern   = errors.New("pattern has no transactions")
	ErrUnknownPattern = errors.New("unknown pattern")

	// Cache errors.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCacheUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

// MissingTransactionsError reports transaction ids that could not be found
// during a bulk update. The update is rolled back when this is returned.
type MissingTransactionsError struct {
	IDs []string
}

func (e *MissingTransactionsError) Error() string {
	return fmt.Sprintf("%d transaction(s) not found: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}

func (e *MissingTransactionsError) Unwrap() error {
	return ErrNotFound
}
