package recurring_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/recurring"
	"github.com/fascinih/finance-app/internal/testutil"
)

func findPattern(t *testing.T, patterns []model.RecurringPattern, description string) model.RecurringPattern {
	t.Helper()
	for _, p := range patterns {
		if p.DescriptionPattern == description {
			return p
		}
	}
	t.Fatalf("pattern %q not found in %d patterns", description, len(patterns))
	return model.RecurringPattern{}
}

func TestDetector_SQLiteWorkflow(t *testing.T) {
	netflix := testutil.NewSeries(t, "nf").
		WithDescription("NETFLIX ASSINATURA").
		WithCategory("Streaming").
		WithAmount("-39.90").
		Monthly(6).
		Build()
	gym := testutil.NewSeries(t, "gym").
		WithDescription("SMART FIT ACADEMIA").
		WithAmount("-25.00").
		StartingOn(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)).
		Every(7, 8).
		Build()
	noise := testutil.NewSeries(t, "mkt").
		WithDescription("SUPERMERCADO EXTRA").
		WithAmounts("-210.35", "-98.10").
		WithGaps(12).
		Build()

	db := testutil.SetupTestDB(t, testutil.Concat(netflix, gym, noise)...)

	opts := recurring.DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2025, time.July, 1, 9, 30, 0, 0, time.UTC) }
	detector, err := recurring.NewDetector(db.Storage, opts)
	require.NoError(t, err)

	ctx := context.Background()

	patterns, err := detector.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	nf := findPattern(t, patterns, "netflix assinatura")
	assert.Equal(t, model.FrequencyMonthly, nf.FrequencyType)
	assert.InDelta(t, 1.0, nf.Confidence, 1e-9)
	assert.Equal(t, "Streaming", nf.CategorySuggestion)
	assert.ElementsMatch(t, []string{"nf-1", "nf-2", "nf-3", "nf-4", "nf-5", "nf-6"}, nf.TransactionIDs)

	weekly := findPattern(t, patterns, "smart fit academia")
	assert.Equal(t, model.FrequencyWeekly, weekly.FrequencyType)
	assert.GreaterOrEqual(t, weekly.Confidence, 0.9)

	result, err := detector.Mark(ctx, nf)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Updated)

	marked := db.MustGet("nf-3")
	assert.True(t, marked.IsRecurring)
	assert.Equal(t, result.GroupID, marked.RecurringGroupID)
	assert.Equal(t, string(model.FrequencyMonthly), marked.RecurringPattern)

	// Marked transactions are no longer candidates.
	patterns, err = detector.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "smart fit academia", patterns[0].DescriptionPattern)

	forecasts, err := detector.Forecast(ctx, 30)
	require.NoError(t, err)
	require.Len(t, forecasts, 1)
	assert.Equal(t, time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC), forecasts[0].PredictedDate)
	assert.True(t, decimal.RequireFromString("-39.90").Equal(forecasts[0].EstimatedAmount))
	assert.Equal(t, "NETFLIX ASSINATURA", forecasts[0].Description)
	assert.Equal(t, result.GroupID, forecasts[0].RecurringGroupID)
}

func TestDetector_SQLiteMarkIsAtomic(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.NewSeries(t, "luz").
		WithDescription("ENEL CONTA DE LUZ").
		Monthly(4).
		Build()...)

	detector, err := recurring.NewDetector(db.Storage, recurring.DefaultOptions())
	require.NoError(t, err)

	stale := model.RecurringPattern{
		PatternID:      "stale",
		FrequencyType:  model.FrequencyMonthly,
		TransactionIDs: []string{"luz-1", "luz-2", "luz-3", "luz-4", "deleted"},
	}

	_, err = detector.Mark(context.Background(), stale)
	require.Error(t, err)

	for _, id := range []string{"luz-1", "luz-4"} {
		assert.False(t, db.MustGet(id).IsRecurring, id)
	}
}
