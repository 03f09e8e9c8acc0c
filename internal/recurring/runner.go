package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// AutoMarkConfidence marks every pattern at or above this confidence
	// after detection. Zero disables marking.
	AutoMarkConfidence float64
	// MarkAll marks every detected pattern regardless of confidence.
	MarkAll bool
	Retry   common.RetryOptions
	Metrics Metrics
}

// RunResult summarizes one Run.
type RunResult struct {
	Patterns     []model.RecurringPattern
	Marked       int
	MarkedGroups []MarkResult
	Duration     time.Duration
}

// Runner executes detection as a batch job. Concurrent runs sharing a key are
// collapsed into one so the same transactions are never marked twice.
type Runner struct {
	detector *Detector
	cfg      RunnerConfig
	sf       *singleflight.Group
}

// NewRunner creates a runner around detector.
func NewRunner(detector *Detector, cfg RunnerConfig) *Runner {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Runner{
		detector: detector,
		cfg:      cfg,
		sf:       &singleflight.Group{},
	}
}

// Run detects patterns and, when enabled, marks the confident ones. Callers
// that share a key while a run is in flight receive that run's result.
func (r *Runner) Run(ctx context.Context, key string) (RunResult, error) {
	select {
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	default:
	}

	v, err, shared := r.sf.Do(key, func() (interface{}, error) {
		return r.run(ctx)
	})
	if shared {
		slog.Debug("Joined in-flight recurring run", "key", key)
	}
	if err != nil {
		return RunResult{}, err
	}
	return v.(RunResult), nil
}

func (r *Runner) run(ctx context.Context) (RunResult, error) {
	start := time.Now()

	result, err := r.detectAndMark(ctx)
	result.Duration = time.Since(start)

	if err != nil {
		r.cfg.Metrics.RecordRun(ResultError, result.Duration)
		return RunResult{}, err
	}

	r.cfg.Metrics.RecordRun(ResultSuccess, result.Duration)
	r.cfg.Metrics.RecordPatterns(len(result.Patterns))
	r.cfg.Metrics.RecordMarked(result.Marked)

	slog.Info("Recurring run completed",
		"patterns", len(result.Patterns),
		"marked", result.Marked,
		"duration", result.Duration)

	return result, nil
}

func (r *Runner) detectAndMark(ctx context.Context) (RunResult, error) {
	var result RunResult

	err := common.WithRetry(ctx, func() error {
		patterns, err := r.detector.Detect(ctx)
		if err != nil {
			return err
		}
		result.Patterns = patterns
		return nil
	}, r.cfg.Retry)
	if err != nil {
		return result, fmt.Errorf("recurring detection failed: %w", err)
	}

	if !r.cfg.MarkAll && r.cfg.AutoMarkConfidence <= 0 {
		return result, nil
	}

	for _, pattern := range result.Patterns {
		if !r.cfg.MarkAll && pattern.Confidence < r.cfg.AutoMarkConfidence {
			continue
		}

		var marked MarkResult
		err := common.WithRetry(ctx, func() error {
			var err error
			marked, err = r.detector.Mark(ctx, pattern)
			return err
		}, r.cfg.Retry)
		if err != nil {
			return result, fmt.Errorf("auto-mark failed: %w", err)
		}

		result.Marked += marked.Updated
		result.MarkedGroups = append(result.MarkedGroups, marked)
	}

	return result, nil
}
