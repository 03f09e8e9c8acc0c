package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/model"
)

// DefaultStart is the date of the first transaction of a series unless
// StartingOn is used.
var DefaultStart = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

// SeriesBuilder produces a run of similar transactions with a fluent API.
// Ids are "<prefix>-1", "<prefix>-2", and so on.
type SeriesBuilder struct {
	t            *testing.T
	start        time.Time
	amount       decimal.Decimal
	prefix       string
	description  string
	counterpart  string
	category     string
	accountID    string
	offsets      []int
	monthly      int
	amounts      []decimal.Decimal
}

// NewSeries starts a series whose ids use prefix.
func NewSeries(t *testing.T, prefix string) *SeriesBuilder {
	t.Helper()

	return &SeriesBuilder{
		t:           t,
		prefix:      prefix,
		start:       DefaultStart,
		amount:      decimal.NewFromInt(-100),
		description: "PAGAMENTO " + prefix,
		accountID:   "acc1",
	}
}

// WithDescription sets the raw description.
func (b *SeriesBuilder) WithDescription(description string) *SeriesBuilder {
	b.description = description
	return b
}

// WithCounterpart sets the counterpart name.
func (b *SeriesBuilder) WithCounterpart(name string) *SeriesBuilder {
	b.counterpart = name
	return b
}

// WithCategory sets the explicit category.
func (b *SeriesBuilder) WithCategory(category string) *SeriesBuilder {
	b.category = category
	return b
}

// WithAmount sets the signed amount, e.g. "-39.90".
func (b *SeriesBuilder) WithAmount(amount string) *SeriesBuilder {
	b.t.Helper()

	d, err := decimal.NewFromString(amount)
	if err != nil {
		b.t.Fatalf("invalid amount %q: %v", amount, err)
	}
	b.amount = d
	return b
}

// WithAmounts sets one amount per transaction, overriding WithAmount.
func (b *SeriesBuilder) WithAmounts(amounts ...string) *SeriesBuilder {
	b.t.Helper()

	b.amounts = make([]decimal.Decimal, len(amounts))
	for i, a := range amounts {
		b.amounts[i] = decimal.RequireFromString(a)
	}
	return b
}

// StartingOn sets the date of the first transaction.
func (b *SeriesBuilder) StartingOn(start time.Time) *SeriesBuilder {
	b.start = model.TruncateDate(start)
	return b
}

// Monthly produces count transactions on the same day of consecutive months.
func (b *SeriesBuilder) Monthly(count int) *SeriesBuilder {
	b.monthly = count
	b.offsets = nil
	return b
}

// Every produces count transactions spaced days apart.
func (b *SeriesBuilder) Every(days, count int) *SeriesBuilder {
	b.monthly = 0
	b.offsets = make([]int, count)
	for i := range b.offsets {
		b.offsets[i] = i * days
	}
	return b
}

// WithGaps produces one transaction at the start and one after each gap.
func (b *SeriesBuilder) WithGaps(gaps ...int) *SeriesBuilder {
	b.monthly = 0
	b.offsets = []int{0}
	day := 0
	for _, gap := range gaps {
		day += gap
		b.offsets = append(b.offsets, day)
	}
	return b
}

// Build returns the transactions with their hashes set.
func (b *SeriesBuilder) Build() []model.Transaction {
	b.t.Helper()

	var dates []time.Time
	if b.monthly > 0 {
		for i := 0; i < b.monthly; i++ {
			dates = append(dates, b.start.AddDate(0, i, 0))
		}
	} else {
		for _, offset := range b.offsets {
			dates = append(dates, b.start.AddDate(0, 0, offset))
		}
	}

	if len(dates) == 0 {
		b.t.Fatalf("series %s has no dates; call Monthly, Every or WithGaps", b.prefix)
	}
	if len(b.amounts) > 0 && len(b.amounts) != len(dates) {
		b.t.Fatalf("series %s has %d amounts for %d dates", b.prefix, len(b.amounts), len(dates))
	}

	txns := make([]model.Transaction, len(dates))
	for i, date := range dates {
		amount := b.amount
		if len(b.amounts) > 0 {
			amount = b.amounts[i]
		}
		txn := model.Transaction{
			ID:              fmt.Sprintf("%s-%d", b.prefix, i+1),
			Date:            date,
			Amount:          amount,
			Description:     b.description,
			CounterpartName: b.counterpart,
			Category:        b.category,
			AccountID:       b.accountID,
			ImportSource:    "test",
		}
		txn.Hash = txn.GenerateHash()
		txns[i] = txn
	}
	return txns
}

// Concat joins several series into one slice.
func Concat(series ...[]model.Transaction) []model.Transaction {
	var all []model.Transaction
	for _, s := range series {
		all = append(all, s...)
	}
	return all
}
