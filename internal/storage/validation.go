// Package storage provides the data persistence layer for the finance application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/service"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidFrequency   = errors.New("invalid recurring frequency")
	ErrInvalidFilter      = errors.New("invalid transaction filter")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateIDs ensures a list of ids is non-empty and has no blank entries.
func validateIDs(ids []string) error {
	if ids == nil {
		return fmt.Errorf("%w: ids", ErrNilParameter)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: ids", ErrEmptySlice)
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: id at index %d", ErrEmptyString, i)
		}
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.IsRecurring && txn.RecurringGroupID == "" {
		return fmt.Errorf("%w: recurring without group id", ErrInvalidTransaction)
	}
	return nil
}

// validateFrequency ensures a recurring pattern name is one we can forecast.
func validateFrequency(frequency model.Frequency) error {
	if !frequency.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}
	return nil
}

// validateMark checks the arguments of a recurring mark.
func validateMark(ctx context.Context, ids []string, frequency model.Frequency, groupID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateIDs(ids); err != nil {
		return err
	}
	if err := validateFrequency(frequency); err != nil {
		return err
	}
	return validateString(groupID, "groupID")
}

// validateFilter checks a transaction query filter.
func validateFilter(ctx context.Context, filter service.TransactionFilter) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidDateRange,
			filter.EndDate.Format(model.DateLayout), filter.StartDate.Format(model.DateLayout))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return fmt.Errorf("%w: limit and offset cannot be negative", ErrInvalidFilter)
	}
	return nil
}
