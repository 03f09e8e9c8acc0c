package recurring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fascinih/finance-app/internal/common"
)

type recordedMetrics struct {
	results  []string
	patterns int
	marked   int
	mu       sync.Mutex
}

func (m *recordedMetrics) RecordRun(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordedMetrics) RecordPatterns(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns += count
}

func (m *recordedMetrics) RecordMarked(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked += count
}

var fastRetry = common.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func TestRunner_Run_DetectOnly(t *testing.T) {
	store := newFakeStore(netflixSeries()...)
	metrics := &recordedMetrics{}
	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{Metrics: metrics, Retry: fastRetry})

	result, err := runner.Run(context.Background(), "default")
	require.NoError(t, err)

	assert.Len(t, result.Patterns, 1)
	assert.Zero(t, result.Marked)
	assert.Empty(t, result.MarkedGroups)
	assert.Zero(t, store.markCalls)

	assert.Equal(t, []string{ResultSuccess}, metrics.results)
	assert.Equal(t, 1, metrics.patterns)
	assert.Zero(t, metrics.marked)
}

func TestRunner_Run_AutoMark(t *testing.T) {
	txns := append(netflixSeries(),
		txn("w1", date(2025, time.May, 1), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w2", date(2025, time.May, 8), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w3", date(2025, time.May, 17), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w4", date(2025, time.May, 22), "-25.00", "FEIRA ORGANICA SABADO"),
	)
	store := newFakeStore(txns...)
	metrics := &recordedMetrics{}
	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{
		AutoMarkConfidence: 0.95,
		Metrics:            metrics,
		Retry:              fastRetry,
	})

	result, err := runner.Run(context.Background(), "default")
	require.NoError(t, err)

	// Only the monthly series clears 0.95; the weekly one scores about 0.93.
	assert.Len(t, result.Patterns, 2)
	assert.Equal(t, 6, result.Marked)
	require.Len(t, result.MarkedGroups, 1)
	assert.True(t, store.get("nf-1").IsRecurring)
	assert.False(t, store.get("w1").IsRecurring)
	assert.Equal(t, 6, metrics.marked)
}

func TestRunner_Run_MarkAll(t *testing.T) {
	txns := append(netflixSeries(),
		txn("w1", date(2025, time.May, 1), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w2", date(2025, time.May, 8), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w3", date(2025, time.May, 17), "-25.00", "FEIRA ORGANICA SABADO"),
		txn("w4", date(2025, time.May, 22), "-25.00", "FEIRA ORGANICA SABADO"),
	)
	store := newFakeStore(txns...)
	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{MarkAll: true, Retry: fastRetry})

	result, err := runner.Run(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, 10, result.Marked)
	require.Len(t, result.MarkedGroups, 2)
	for i, marked := range result.MarkedGroups {
		assert.Equal(t, result.Patterns[i].PatternID, marked.PatternID)
	}
	assert.True(t, store.get("w1").IsRecurring)
	assert.True(t, store.get("nf-1").IsRecurring)
}

func TestRunner_Run_RetriesTransientErrors(t *testing.T) {
	store := newFakeStore(netflixSeries()...)
	attempts := 0
	store.onCandidates = func() {
		store.mu.Lock()
		defer store.mu.Unlock()
		attempts++
		if attempts == 1 {
			store.candidateErr = &common.RetryableError{Err: errors.New("database is locked"), Retryable: true}
			return
		}
		store.candidateErr = nil
	}

	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{Retry: fastRetry})

	result, err := runner.Run(context.Background(), "default")
	require.NoError(t, err)
	assert.Len(t, result.Patterns, 1)
	assert.Equal(t, 2, attempts)
}

func TestRunner_Run_PermanentError(t *testing.T) {
	store := newFakeStore()
	store.candidateErr = errors.New("no such table: transactions")
	metrics := &recordedMetrics{}

	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{Metrics: metrics, Retry: fastRetry})

	_, err := runner.Run(context.Background(), "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.Equal(t, 1, store.candidateCalls)
	assert.Equal(t, []string{ResultError}, metrics.results)
}

func TestRunner_Run_CanceledContext(t *testing.T) {
	store := newFakeStore(netflixSeries()...)
	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, "default")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.candidateCalls)
}

func TestRunner_Run_CollapsesConcurrentRuns(t *testing.T) {
	store := newFakeStore(netflixSeries()...)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.onCandidates = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	runner := NewRunner(newTestDetector(t, store, nil), RunnerConfig{
		AutoMarkConfidence: 0.9,
		Retry:              fastRetry,
	})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]RunResult, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = runner.Run(context.Background(), "default")
	}()
	<-entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = runner.Run(context.Background(), "default")
		}(i)
	}

	// Give the followers time to join the in-flight run.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 6, results[i].Marked)
	}
	assert.Equal(t, 1, store.candidateCalls)
	assert.Equal(t, 1, store.markCalls)
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics("finance", reg)
	require.NoError(t, err)

	metrics.RecordRun(ResultSuccess, 20*time.Millisecond)
	metrics.RecordRun(ResultError, time.Millisecond)
	metrics.RecordRun(ResultSuccess, time.Millisecond)
	metrics.RecordPatterns(4)
	metrics.RecordMarked(12)

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultSuccess)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultError)), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.patterns), 1e-9)
	assert.InDelta(t, 12, testutil.ToFloat64(metrics.marked), 1e-9)
	assert.Positive(t, testutil.ToFloat64(metrics.lastRun))

	// A second registration on the same registry collides.
	_, err = NewPrometheusMetrics("finance", reg)
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"single occurrence", func(o *Options) { o.MinOccurrences = 1 }, true},
		{"similarity above one", func(o *Options) { o.SimilarityThreshold = 1.5 }, true},
		{"negative counterpart threshold", func(o *Options) { o.CounterpartThreshold = -0.1 }, true},
		{"negative tolerance", func(o *Options) { o.AmountTolerance = -1 }, true},
		{"confidence above one", func(o *Options) { o.MinConfidence = 2 }, true},
		{"zero lookback", func(o *Options) { o.LookbackDays = 0 }, true},
		{"zero forecast days", func(o *Options) { o.ForecastDays = 0 }, true},
		{"forecast confidence above one", func(o *Options) { o.ForecastConfidence = 1.1 }, true},
		{"generous tolerance", func(o *Options) { o.AmountTolerance = 0.5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
