package recurring

import (
	"fmt"
	"time"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
)

// Options tunes detection, marking and forecasting.
type Options struct {
	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time

	MinOccurrences       int
	SimilarityThreshold  float64 // Minimum description ratio
	CounterpartThreshold float64 // Minimum counterpart ratio when both sides have one
	AmountTolerance      float64 // Maximum relative amount difference
	MinConfidence        float64 // Patterns below this are not returned
	LookbackDays         int
	ForecastDays         int
	ForecastConfidence   float64
}

// DefaultOptions returns the calibrated detection defaults.
func DefaultOptions() Options {
	return Options{
		Now:                  time.Now,
		MinOccurrences:       3,
		SimilarityThreshold:  0.8,
		CounterpartThreshold: 0.7,
		AmountTolerance:      0.1,
		MinConfidence:        0.6,
		LookbackDays:         365,
		ForecastDays:         30,
		ForecastConfidence:   0.8,
	}
}

// Validate checks that every option is within its meaningful range.
func (o Options) Validate() error {
	switch {
	case o.MinOccurrences < 2:
		return fmt.Errorf("%w: min occurrences must be at least 2, got %d", common.ErrInvalidConfig, o.MinOccurrences)
	case !unitInterval(o.SimilarityThreshold):
		return fmt.Errorf("%w: similarity threshold must be in [0,1], got %v", common.ErrInvalidConfig, o.SimilarityThreshold)
	case !unitInterval(o.CounterpartThreshold):
		return fmt.Errorf("%w: counterpart threshold must be in [0,1], got %v", common.ErrInvalidConfig, o.CounterpartThreshold)
	case o.AmountTolerance < 0:
		return fmt.Errorf("%w: amount tolerance cannot be negative, got %v", common.ErrInvalidConfig, o.AmountTolerance)
	case !unitInterval(o.MinConfidence):
		return fmt.Errorf("%w: min confidence must be in [0,1], got %v", common.ErrInvalidConfig, o.MinConfidence)
	case o.LookbackDays <= 0:
		return fmt.Errorf("%w: lookback days must be positive, got %d", common.ErrInvalidConfig, o.LookbackDays)
	case o.ForecastDays <= 0:
		return fmt.Errorf("%w: forecast days must be positive, got %d", common.ErrInvalidConfig, o.ForecastDays)
	case !unitInterval(o.ForecastConfidence):
		return fmt.Errorf("%w: forecast confidence must be in [0,1], got %v", common.ErrInvalidConfig, o.ForecastConfidence)
	}
	return nil
}

func (o Options) today() time.Time {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return model.TruncateDate(now())
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
