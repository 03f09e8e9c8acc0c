package recurring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
)

// MarkResult describes one applied pattern.
type MarkResult struct {
	PatternID string
	GroupID   string
	Updated   int
}

// Mark flags every transaction of pattern as recurring under a freshly
// generated group id. The store applies the update atomically; when any id is
// missing nothing is updated and a *common.MissingTransactionsError is
// returned.
func (d *Detector) Mark(ctx context.Context, pattern model.RecurringPattern) (MarkResult, error) {
	if len(pattern.TransactionIDs) == 0 {
		return MarkResult{}, common.ErrEmptyPattern
	}
	if !pattern.FrequencyType.IsValid() {
		return MarkResult{}, fmt.Errorf("%w: frequency %q", common.ErrUnknownPattern, pattern.FrequencyType)
	}

	groupID := d.newID()
	updated, err := d.store.MarkRecurring(ctx, pattern.TransactionIDs, pattern.FrequencyType, groupID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("failed to mark pattern %s: %w", pattern.PatternID, err)
	}

	slog.Info("Marked transactions as recurring",
		"count", updated,
		"frequency", pattern.FrequencyType,
		"group_id", groupID,
		"pattern_id", pattern.PatternID)

	return MarkResult{PatternID: pattern.PatternID, GroupID: groupID, Updated: updated}, nil
}
