// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for storage and display.
const DateLayout = "2006-01-02"

// Transaction represents a single financial transaction from any source.
type Transaction struct {
	Date             time.Time
	Amount           decimal.Decimal // Signed: negative for debits
	ID               string
	Description      string // Raw transaction description
	CounterpartName  string // Merchant or payee, when the source provides one
	Category         string // Explicit category
	LLMCategory      string // Category suggested by a language model
	AccountID        string
	ImportSource     string
	RecurringPattern string
	RecurringGroupID string
	Hash             string
	IsRecurring      bool
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Date.Format(DateLayout),
		t.Amount.StringFixed(2),
		t.Description,
		t.CounterpartName,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// AbsAmount returns the magnitude of the transaction amount.
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// IsDebit reports whether money left the account.
func (t *Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// EffectiveCategory prefers the model-assigned category over the explicit one.
func (t *Transaction) EffectiveCategory() string {
	if t.LLMCategory != "" {
		return t.LLMCategory
	}
	return t.Category
}

// TruncateDate drops the time-of-day and location, keeping the calendar date.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(TruncateDate(b).Sub(TruncateDate(a)).Hours() / 24)
}
