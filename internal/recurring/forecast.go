package recurring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fascinih/finance-app/internal/model"
)

// Forecast projects every marked recurring group forward from its latest
// transaction until today+daysAhead. A non-positive daysAhead uses the
// configured default. Results are ordered by predicted date.
func (d *Detector) Forecast(ctx context.Context, daysAhead int) ([]model.Forecast, error) {
	if daysAhead <= 0 {
		daysAhead = d.opts.ForecastDays
	}

	groups, err := d.store.GetRecurringGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring groups: %w", err)
	}

	return ProjectGroups(groups, d.opts.today(), daysAhead, d.opts.ForecastConfidence), nil
}

// ProjectGroups is the pure projection behind Forecast. Each group steps by
// the fixed length of its stored frequency; amounts are carried over
// unchanged from the latest transaction.
func ProjectGroups(groups []model.RecurringGroup, today time.Time, daysAhead int, confidence float64) []model.Forecast {
	ordered := make([]model.RecurringGroup, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].GroupID < ordered[j].GroupID
	})

	horizon := model.TruncateDate(today).AddDate(0, 0, daysAhead)
	forecasts := []model.Forecast{}

	for _, group := range ordered {
		frequency := model.Frequency(group.Pattern)
		step := frequency.Days()
		last := group.Last

		for next := model.TruncateDate(last.Date).AddDate(0, 0, step); !next.After(horizon); next = next.AddDate(0, 0, step) {
			forecasts = append(forecasts, model.Forecast{
				PredictedDate:    next,
				Description:      last.Description,
				EstimatedAmount:  last.Amount,
				Category:         last.EffectiveCategory(),
				FrequencyType:    frequency,
				Confidence:       confidence,
				RecurringGroupID: group.GroupID,
			})
		}
	}

	sort.SliceStable(forecasts, func(i, j int) bool {
		return forecasts[i].PredictedDate.Before(forecasts[j].PredictedDate)
	})

	return forecasts
}
