package recurring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records the outcome of detection runs.
type Metrics interface {
	RecordRun(result string, duration time.Duration)
	RecordPatterns(count int)
	RecordMarked(count int)
}

// Run results reported to Metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// NopMetrics discards everything.
type NopMetrics struct{}

// RecordRun does nothing.
func (NopMetrics) RecordRun(string, time.Duration) {}

// RecordPatterns does nothing.
func (NopMetrics) RecordPatterns(int) {}

// RecordMarked does nothing.
func (NopMetrics) RecordMarked(int) {}

// PrometheusMetrics exports run metrics to Prometheus.
type PrometheusMetrics struct {
	runs     *prometheus.CounterVec
	patterns prometheus.Counter
	marked   prometheus.Counter
	duration prometheus.Histogram
	lastRun  prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recurring_runs_total",
				Help:      "Total number of recurring detection runs by result",
			},
			[]string{"result"},
		),
		patterns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_patterns_detected_total",
			Help:      "Total number of recurring patterns detected",
		}),
		marked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_transactions_marked_total",
			Help:      "Total number of transactions marked as recurring",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recurring_run_duration_seconds",
			Help:      "Recurring detection run latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recurring_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished detection run",
		}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.patterns, m.marked, m.duration, m.lastRun} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordRun counts a finished run and observes its duration.
func (m *PrometheusMetrics) RecordRun(result string, duration time.Duration) {
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(duration.Seconds())
	m.lastRun.SetToCurrentTime()
}

// RecordPatterns adds to the detected pattern count.
func (m *PrometheusMetrics) RecordPatterns(count int) {
	m.patterns.Add(float64(count))
}

// RecordMarked adds to the marked transaction count.
func (m *PrometheusMetrics) RecordMarked(count int) {
	m.marked.Add(float64(count))
}
