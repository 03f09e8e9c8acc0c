package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/model"
)

// shortIDLength is how many characters of a uuid are shown in tables. Any
// unique prefix is accepted back by the apply command.
const shortIDLength = 8

// FormatAmount renders an amount with two decimals, colored by direction.
func FormatAmount(amount decimal.Decimal) string {
	text := amount.StringFixed(2)
	if amount.IsNegative() {
		return DebitStyle.Render(text)
	}
	return CreditStyle.Render(text)
}

// FormatAmountRange renders a min/max pair, collapsing equal bounds.
func FormatAmountRange(r model.AmountRange) string {
	if r.Min.Equal(r.Max) {
		return r.Min.StringFixed(2)
	}
	return r.Min.StringFixed(2) + " - " + r.Max.StringFixed(2)
}

// FormatConfidence renders a confidence score as a percentage, colored by
// strength.
func FormatConfidence(confidence float64) string {
	text := fmt.Sprintf("%.0f%%", confidence*100)
	switch {
	case confidence >= 0.8:
		return SuccessStyle.Render(text)
	case confidence >= 0.6:
		return WarningStyle.Render(text)
	default:
		return SubtleStyle.Render(text)
	}
}

// ShortID truncates an id for display.
func ShortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// RenderPatterns writes detected patterns as an aligned table.
func RenderPatterns(w io.Writer, patterns []model.RecurringPattern) error {
	if len(patterns) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No recurring patterns found."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		TableHeaderStyle.Render("ID"),
		TableHeaderStyle.Render("Pattern"),
		TableHeaderStyle.Render("Merchant"),
		TableHeaderStyle.Render("Frequency"),
		TableHeaderStyle.Render("Amount"),
		TableHeaderStyle.Render("Txns"),
		TableHeaderStyle.Render("Next"),
		TableHeaderStyle.Render("Confidence")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, p := range patterns {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			ShortID(p.PatternID),
			truncate(p.DescriptionPattern, 32),
			orDash(truncate(p.MerchantPattern, 20)),
			frequencyLabel(p.FrequencyType, p.FrequencyDays),
			FormatAmountRange(p.AmountRange),
			len(p.TransactionIDs),
			p.NextExpectedDate.Format(model.DateLayout),
			FormatConfidence(p.Confidence)); err != nil {
			return fmt.Errorf("failed to write pattern row: %w", err)
		}
	}

	return tw.Flush()
}

// RenderForecasts writes projected occurrences as an aligned table followed
// by the projected total.
func RenderForecasts(w io.Writer, forecasts []model.Forecast) error {
	if len(forecasts) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No upcoming recurring transactions."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		TableHeaderStyle.Render("Date"),
		TableHeaderStyle.Render("Description"),
		TableHeaderStyle.Render("Amount"),
		TableHeaderStyle.Render("Frequency"),
		TableHeaderStyle.Render("Category"),
		TableHeaderStyle.Render("Group")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	total := decimal.Zero
	for _, f := range forecasts {
		total = total.Add(f.EstimatedAmount)
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.PredictedDate.Format(model.DateLayout),
			truncate(f.Description, 40),
			FormatAmount(f.EstimatedAmount),
			string(f.FrequencyType),
			orDash(f.Category),
			ShortID(f.RecurringGroupID)); err != nil {
			return fmt.Errorf("failed to write forecast row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s %s\n", BoldStyle.Render("Projected total:"), FormatAmount(total))
	return err
}

func frequencyLabel(f model.Frequency, days int) string {
	if f == model.FrequencyIrregular {
		return fmt.Sprintf("%s (~%dd)", f, days)
	}
	return string(f)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
