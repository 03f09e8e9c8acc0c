package recurring

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/similarity"
)

// GroupingReport accounts for every transaction passed to Group.
type GroupingReport struct {
	// Groups holds each group that reached the minimum size, in seed order.
	Groups [][]model.Transaction
	// Discarded lists the ids of transactions whose group was too small.
	Discarded []string
}

// folded caches the lower-cased comparison keys of a transaction.
type folded struct {
	description string
	counterpart string
}

func foldTransaction(txn model.Transaction) folded {
	return folded{
		description: similarity.Fold(txn.Description),
		counterpart: similarity.Fold(txn.CounterpartName),
	}
}

// Group partitions chronologically ordered transactions with greedy
// seed-only single linkage: the first ungrouped transaction seeds a group and
// absorbs every later ungrouped transaction similar to the seed. Members are
// compared with the seed only, never with each other, so two members of a
// group need not be similar. Output depends on input order.
func (d *Detector) Group(txns []model.Transaction) GroupingReport {
	keys := make([]folded, len(txns))
	for i, txn := range txns {
		keys[i] = foldTransaction(txn)
	}

	var report GroupingReport
	used := make([]bool, len(txns))

	for i := range txns {
		if used[i] {
			continue
		}
		used[i] = true
		group := []model.Transaction{txns[i]}

		for j := i + 1; j < len(txns); j++ {
			if used[j] {
				continue
			}
			if d.similar(txns[i], txns[j], keys[i], keys[j]) {
				group = append(group, txns[j])
				used[j] = true
			}
		}

		if len(group) < d.opts.MinOccurrences {
			report.Discarded = append(report.Discarded, transactionIDs(group)...)
			continue
		}
		report.Groups = append(report.Groups, group)
	}

	slog.Debug("Grouped similar transactions",
		"groups", len(report.Groups),
		"discarded", len(report.Discarded))

	return report
}

// Similar reports whether two transactions look like occurrences of the
// same charge.
func (d *Detector) Similar(a, b model.Transaction) bool {
	return d.similar(a, b, foldTransaction(a), foldTransaction(b))
}

func (d *Detector) similar(a, b model.Transaction, ka, kb folded) bool {
	if similarity.Ratio(ka.description, kb.description) < d.opts.SimilarityThreshold {
		return false
	}

	if !AmountsSimilar(a.Amount, b.Amount, d.opts.AmountTolerance) {
		return false
	}

	if ka.counterpart != "" && kb.counterpart != "" &&
		similarity.Ratio(ka.counterpart, kb.counterpart) < d.opts.CounterpartThreshold {
		return false
	}

	return true
}

// AmountsSimilar compares magnitudes: |a-b| / max(|a|,|b|) <= tolerance.
// Two zero amounts are similar; a zero and a non-zero amount are not.
func AmountsSimilar(a, b decimal.Decimal, tolerance float64) bool {
	a, b = a.Abs(), b.Abs()
	largest := decimal.Max(a, b)
	if largest.IsZero() {
		return true
	}
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b).Abs()
	return diff.Div(largest).LessThanOrEqual(decimal.NewFromFloat(tolerance))
}
