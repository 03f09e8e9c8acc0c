package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/model"
)

func group(id, pattern string, last model.Transaction) model.RecurringGroup {
	return model.RecurringGroup{GroupID: id, Pattern: pattern, Last: last, Count: 3}
}

func TestProjectGroups_Weekly(t *testing.T) {
	today := date(2025, time.July, 1)
	last := txn("g1-3", today, "-120.50", "DIARISTA MARIA")
	last.Category = "Casa"

	forecasts := ProjectGroups([]model.RecurringGroup{group("g1", "weekly", last)}, today, 30, 0.8)
	require.Len(t, forecasts, 4)

	want := []time.Time{
		date(2025, time.July, 8),
		date(2025, time.July, 15),
		date(2025, time.July, 22),
		date(2025, time.July, 29),
	}
	for i, f := range forecasts {
		assert.Equal(t, want[i], f.PredictedDate)
		assert.Equal(t, "DIARISTA MARIA", f.Description)
		assert.True(t, f.EstimatedAmount.Equal(decimal.RequireFromString("-120.50")))
		assert.Equal(t, "Casa", f.Category)
		assert.Equal(t, model.FrequencyWeekly, f.FrequencyType)
		assert.Equal(t, "g1", f.RecurringGroupID)
		assert.InDelta(t, 0.8, f.Confidence, 1e-9)
	}
}

func TestProjectGroups(t *testing.T) {
	today := date(2025, time.July, 1)

	tests := []struct {
		name      string
		groups    []model.RecurringGroup
		daysAhead int
		want      []time.Time
	}{
		{
			name:      "unknown pattern steps thirty days",
			groups:    []model.RecurringGroup{group("g1", "bogus", txn("x", today, "-10", "X"))},
			daysAhead: 30,
			want:      []time.Time{date(2025, time.July, 31)},
		},
		{
			name:      "irregular steps thirty days",
			groups:    []model.RecurringGroup{group("g1", "irregular", txn("x", today, "-10", "X"))},
			daysAhead: 60,
			want:      []time.Time{date(2025, time.July, 31), date(2025, time.August, 30)},
		},
		{
			name:      "horizon is inclusive",
			groups:    []model.RecurringGroup{group("g1", "monthly", txn("x", date(2025, time.June, 1), "-10", "X"))},
			daysAhead: 30,
			want:      []time.Time{date(2025, time.July, 1), date(2025, time.July, 31)},
		},
		{
			name:      "stale group projects from its last transaction",
			groups:    []model.RecurringGroup{group("g1", "weekly", txn("x", date(2025, time.June, 10), "-10", "X"))},
			daysAhead: 7,
			want: []time.Time{
				date(2025, time.June, 17),
				date(2025, time.June, 24),
				date(2025, time.July, 1),
				date(2025, time.July, 8),
			},
		},
		{
			name:      "yearly beyond the horizon",
			groups:    []model.RecurringGroup{group("g1", "yearly", txn("x", today, "-10", "X"))},
			daysAhead: 30,
			want:      nil,
		},
		{
			name:      "no groups",
			groups:    nil,
			daysAhead: 30,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forecasts := ProjectGroups(tt.groups, today, tt.daysAhead, 0.8)
			require.NotNil(t, forecasts)

			var got []time.Time
			for _, f := range forecasts {
				got = append(got, f.PredictedDate)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectGroups_SortedAcrossGroups(t *testing.T) {
	today := date(2025, time.July, 1)
	groups := []model.RecurringGroup{
		group("b", "monthly", txn("b1", date(2025, time.June, 20), "-50", "INTERNET VIVO")),
		group("a", "weekly", txn("a1", date(2025, time.June, 28), "-30", "FEIRA")),
	}

	forecasts := ProjectGroups(groups, today, 20, 0.8)
	require.Len(t, forecasts, 4)

	want := []struct {
		date  time.Time
		group string
	}{
		{date(2025, time.July, 5), "a"},
		{date(2025, time.July, 12), "a"},
		{date(2025, time.July, 19), "a"},
		{date(2025, time.July, 20), "b"},
	}
	for i, w := range want {
		assert.Equal(t, w.date, forecasts[i].PredictedDate)
		assert.Equal(t, w.group, forecasts[i].RecurringGroupID)
	}
}

func TestDetector_Forecast(t *testing.T) {
	store := newFakeStore(netflixSeries()...)
	d := newTestDetector(t, store, nil)

	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	_, err = d.Mark(context.Background(), patterns[0])
	require.NoError(t, err)

	// Zero falls back to the configured thirty days.
	forecasts, err := d.Forecast(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, forecasts, 1)
	assert.Equal(t, date(2025, time.July, 15), forecasts[0].PredictedDate)
	assert.Equal(t, "NETFLIX ASSINATURA", forecasts[0].Description)
}
