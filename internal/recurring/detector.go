// Package recurring detects recurring transactions, marks them, and
// forecasts their upcoming occurrences.
//
// Detection is a single synchronous batch pass whose grouping step is
// quadratic in the number of candidates, so callers bound the input with a
// lookback window and run it on demand rather than on every write.
package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fascinih/finance-app/internal/model"
)

// Store is the persistence boundary the detector reads from and writes to.
type Store interface {
	// GetCandidateTransactions returns transactions dated on or after cutoff
	// that are not yet marked recurring, ordered by date.
	GetCandidateTransactions(ctx context.Context, cutoff time.Time) ([]model.Transaction, error)
	// MarkRecurring flags every id as recurring under groupID. It either
	// updates all ids or none of them.
	MarkRecurring(ctx context.Context, ids []string, frequency model.Frequency, groupID string) (int, error)
	// GetRecurringGroups returns each marked group with its latest transaction.
	GetRecurringGroups(ctx context.Context) ([]model.RecurringGroup, error)
}

// Detector finds recurring patterns. It holds no state between calls.
type Detector struct {
	store Store
	newID func() string
	opts  Options
}

// NewDetector creates a detector backed by store.
func NewDetector(store Store, opts Options) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		store: store,
		opts:  opts,
		newID: uuid.NewString,
	}, nil
}

// Options returns the detector's configuration.
func (d *Detector) Options() Options {
	return d.opts
}

// Detect loads the candidate window from the store and returns the detected
// patterns ordered by descending confidence. Too little data yields an empty
// result, not an error.
func (d *Detector) Detect(ctx context.Context) ([]model.RecurringPattern, error) {
	cutoff := d.opts.today().AddDate(0, 0, -d.opts.LookbackDays)

	txns, err := d.store.GetCandidateTransactions(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate transactions: %w", err)
	}

	slog.Info("Analyzing transactions for recurring patterns",
		"count", len(txns),
		"cutoff", cutoff.Format(model.DateLayout))

	patterns := d.DetectTransactions(txns)

	slog.Info("Recurring pattern detection finished", "patterns", len(patterns))
	return patterns, nil
}

// DetectTransactions runs detection over an in-memory list. Transactions
// already marked recurring are excluded.
func (d *Detector) DetectTransactions(txns []model.Transaction) []model.RecurringPattern {
	candidates := make([]model.Transaction, 0, len(txns))
	skipped := 0
	for _, txn := range txns {
		if txn.IsRecurring {
			skipped++
			continue
		}
		candidates = append(candidates, txn)
	}
	if skipped > 0 {
		slog.Debug("Excluded transactions already marked recurring", "count", skipped)
	}

	patterns := []model.RecurringPattern{}
	if len(candidates) < d.opts.MinOccurrences {
		return patterns
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Date.Before(candidates[j].Date)
	})

	report := d.Group(candidates)
	for _, group := range report.Groups {
		pattern, ok := d.analyze(group)
		if !ok {
			slog.Debug("Group has no valid periodicity", "ids", transactionIDs(group))
			continue
		}
		if pattern.Confidence < d.opts.MinConfidence {
			slog.Debug("Pattern below confidence threshold",
				"description", pattern.DescriptionPattern,
				"frequency", pattern.FrequencyType,
				"confidence", pattern.Confidence)
			continue
		}
		patterns = append(patterns, pattern)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})

	return patterns
}

// analyze turns a similarity group into a pattern. It reports false when the
// spacing of the group cannot be measured.
func (d *Detector) analyze(group []model.Transaction) (model.RecurringPattern, bool) {
	if len(group) < d.opts.MinOccurrences {
		return model.RecurringPattern{}, false
	}

	gaps := make([]int, 0, len(group)-1)
	for i := 1; i < len(group); i++ {
		gaps = append(gaps, model.DaysBetween(group[i-1].Date, group[i].Date))
	}

	estimate, ok := InferFrequency(gaps)
	if !ok {
		return model.RecurringPattern{}, false
	}

	amounts := model.AmountRange{Min: group[0].AbsAmount(), Max: group[0].AbsAmount()}
	for _, txn := range group[1:] {
		abs := txn.AbsAmount()
		if abs.LessThan(amounts.Min) {
			amounts.Min = abs
		}
		if abs.GreaterThan(amounts.Max) {
			amounts.Max = abs
		}
	}

	last := model.TruncateDate(group[len(group)-1].Date)

	return model.RecurringPattern{
		PatternID:          d.newID(),
		DescriptionPattern: DescriptionPattern(group),
		AmountRange:        amounts,
		FrequencyDays:      estimate.Days,
		FrequencyType:      estimate.Type,
		Confidence:         estimate.Confidence,
		TransactionIDs:     transactionIDs(group),
		NextExpectedDate:   last.AddDate(0, 0, estimate.Days),
		MerchantPattern:    MerchantPattern(group),
		CategorySuggestion: CategorySuggestion(group),
	}, true
}

func transactionIDs(txns []model.Transaction) []string {
	ids := make([]string, len(txns))
	for i, txn := range txns {
		ids[i] = txn.ID
	}
	return ids
}
