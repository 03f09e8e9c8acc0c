package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency names the periodicity bucket of a recurring pattern.
type Frequency string

// Frequency constants.
const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyIrregular Frequency = "irregular"
)

// DefaultFrequencyDays is the step used for unknown frequency names.
const DefaultFrequencyDays = 30

var frequencyDays = map[Frequency]int{
	FrequencyDaily:     1,
	FrequencyWeekly:    7,
	FrequencyBiweekly:  14,
	FrequencyMonthly:   30,
	FrequencyQuarterly: 90,
	FrequencyYearly:    365,
}

// Days returns the canonical interval for the frequency.
// Irregular and unrecognized values fall back to DefaultFrequencyDays.
func (f Frequency) Days() int {
	if days, ok := frequencyDays[f]; ok {
		return days
	}
	return DefaultFrequencyDays
}

// IsValid reports whether f is one of the known frequency names.
func (f Frequency) IsValid() bool {
	if f == FrequencyIrregular {
		return true
	}
	_, ok := frequencyDays[f]
	return ok
}

// ParseFrequency converts a stored pattern name into a Frequency.
func ParseFrequency(s string) (Frequency, bool) {
	f := Frequency(s)
	return f, f.IsValid()
}

// AmountRange holds the smallest and largest absolute amounts of a group.
type AmountRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// RecurringPattern is a detected group of transactions believed to repeat.
// Patterns are produced fresh on every detection run.
type RecurringPattern struct {
	NextExpectedDate   time.Time   `json:"next_expected_date"`
	AmountRange        AmountRange `json:"amount_range"`
	PatternID          string      `json:"pattern_id"`
	DescriptionPattern string      `json:"description_pattern"`
	FrequencyType      Frequency   `json:"frequency_type"`
	MerchantPattern    string      `json:"merchant_pattern,omitempty"`
	CategorySuggestion string      `json:"category_suggestion,omitempty"`
	TransactionIDs     []string    `json:"transactions"`
	FrequencyDays      int         `json:"frequency_days"`
	Confidence         float64     `json:"confidence"`
}

// Forecast is a projected future occurrence of a marked recurring group.
type Forecast struct {
	PredictedDate    time.Time       `json:"predicted_date"`
	EstimatedAmount  decimal.Decimal `json:"estimated_amount"`
	Description      string          `json:"description"`
	Category         string          `json:"category,omitempty"`
	FrequencyType    Frequency       `json:"frequency_type"`
	RecurringGroupID string          `json:"recurring_group_id"`
	Confidence       float64         `json:"confidence"`
}

// RecurringGroup summarizes the transactions already marked under one group id.
type RecurringGroup struct {
	GroupID string
	Pattern string
	Last    Transaction
	Count   int
}
