package recurring

import (
	"math"

	"github.com/fascinih/finance-app/internal/model"
)

type frequencyBucket struct {
	frequency model.Frequency
	days      int
	tolerance float64
}

// Checked in order; the first bucket that fits wins.
var frequencyBuckets = []frequencyBucket{
	{model.FrequencyDaily, 1, 1},
	{model.FrequencyWeekly, 7, 2},
	{model.FrequencyBiweekly, 14, 3},
	{model.FrequencyMonthly, 30, 5},
	{model.FrequencyQuarterly, 90, 10},
	{model.FrequencyYearly, 365, 30},
}

const (
	irregularPenalty   = 0.5
	occurrenceBonus    = 0.05
	maxOccurrenceBonus = 0.2
)

// FrequencyEstimate describes the periodicity inferred from a series of gaps.
type FrequencyEstimate struct {
	Type       model.Frequency
	Days       int
	Confidence float64
	MeanGap    float64
	StdDev     float64
	CV         float64 // Coefficient of variation
}

// InferFrequency classifies day gaps between consecutive occurrences.
//
// The mean gap selects a bucket when it lies inside the bucket's tolerance
// and at least half of the individual gaps do too; otherwise the series is
// irregular and keeps its truncated mean as the interval. Confidence falls
// with the coefficient of variation and gains a small bonus per interval
// beyond two (a lone interval costs the same amount). Irregular series are
// then halved, and the result is clamped to [0, 1].
//
// It reports false for an empty series or a zero mean gap.
func InferFrequency(gaps []int) (FrequencyEstimate, bool) {
	if len(gaps) == 0 {
		return FrequencyEstimate{}, false
	}

	var sum float64
	for _, g := range gaps {
		sum += float64(g)
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return FrequencyEstimate{}, false
	}

	var variance float64
	for _, g := range gaps {
		delta := float64(g) - mean
		variance += delta * delta
	}
	variance /= float64(len(gaps))
	stddev := math.Sqrt(variance)
	cv := stddev / mean

	estimate := FrequencyEstimate{
		Type:    model.FrequencyIrregular,
		Days:    int(mean),
		MeanGap: mean,
		StdDev:  stddev,
		CV:      cv,
	}

	for _, bucket := range frequencyBuckets {
		if bucket.fits(mean, gaps) {
			estimate.Type = bucket.frequency
			estimate.Days = bucket.days
			break
		}
	}

	// A single interval gets a negative bonus.
	confidence := math.Max(0, 1-cv/2)
	confidence += math.Min(maxOccurrenceBonus, float64(len(gaps)-2)*occurrenceBonus)
	if estimate.Type == model.FrequencyIrregular {
		confidence *= irregularPenalty
	}
	estimate.Confidence = math.Max(0, math.Min(1, confidence))

	return estimate, true
}

func (b frequencyBucket) fits(mean float64, gaps []int) bool {
	if math.Abs(mean-float64(b.days)) > b.tolerance {
		return false
	}
	inBand := 0
	for _, g := range gaps {
		if math.Abs(float64(g-b.days)) <= b.tolerance {
			inBand++
		}
	}
	return inBand*2 >= len(gaps)
}
