package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fascinih/finance-app/internal/cache"
	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/recurring"
	"github.com/fascinih/finance-app/internal/storage"
)

const metricsNamespace = "finance"

// runnerKey is the singleflight key shared by every detect-and-mark run in
// this process.
const runnerKey = "recurring"

func recurringDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run detection periodically and serve metrics",
		Long: `Run recurring detection on a fixed interval until interrupted. Each run is
stored as the latest detection run, and patterns at or above
--auto-mark-confidence are marked automatically. Prometheus metrics are served
on /metrics and a liveness probe on /healthz.`,
		RunE: runDaemon,
	}

	cmd.Flags().Duration("interval", 0, "Time between runs (default from config)")
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics and /healthz (default from config)")
	cmd.Flags().Float64("auto-mark-confidence", 0, "Mark patterns at or above this confidence (0 disables)")

	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	settings := appConfig.Daemon
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		settings.Interval = interval
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		settings.MetricsAddr = addr
	}
	if cmd.Flags().Changed("auto-mark-confidence") {
		settings.AutoMarkConfidence, _ = cmd.Flags().GetFloat64("auto-mark-confidence")
	}
	if settings.Interval <= 0 {
		return common.NewUserError("daemon interval must be positive", common.ErrInvalidConfig)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly("database", store)

	runCache, err := initCache(store)
	if err != nil {
		return err
	}
	defer closeQuietly("cache", runCache)

	detector, err := newDetector(store, nil)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := recurring.NewPrometheusMetrics(metricsNamespace, registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	runner := recurring.NewRunner(detector, recurring.RunnerConfig{
		AutoMarkConfidence: settings.AutoMarkConfidence,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              settings.MetricsAddr,
		Handler:           newDaemonRouter(registry, store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", settings.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down metrics server", "error", err)
		}
	}()

	slog.Info("Recurring daemon started",
		"interval", settings.Interval,
		"auto_mark_confidence", settings.AutoMarkConfidence)

	return runDaemonLoop(ctx, runner, runCache, settings.Interval, serverErr)
}

// runDaemonLoop runs immediately and then on every tick until ctx is done.
// A failed run is logged and retried on the next tick.
func runDaemonLoop(ctx context.Context, runner *recurring.Runner, runCache cache.PatternCache, interval time.Duration, serverErr <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, runner, runCache)

		select {
		case <-ctx.Done():
			slog.Info("Recurring daemon stopping")
			return nil
		case err, ok := <-serverErr:
			if ok && err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			serverErr = nil
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, runner *recurring.Runner, runCache cache.PatternCache) {
	result, err := runner.Run(ctx, runnerKey)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("Recurring run failed", "error", err)
		}
		return
	}

	if len(result.Patterns) == 0 {
		return
	}

	run := cache.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Patterns:  result.Patterns,
	}
	if err := runCache.Put(ctx, run, appConfig.Cache.TTL); err != nil {
		slog.Warn("Failed to store detection run", "run_id", run.ID, "error", err)
	}
}

// pinger reports whether the database is reachable.
type pinger interface {
	SchemaVersion(ctx context.Context) (int, error)
}

func newDaemonRouter(registry *prometheus.Registry, db pinger) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		version, err := db.SchemaVersion(r.Context())
		if err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if version != storage.ExpectedSchemaVersion {
			http.Error(w, "schema out of date", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return router
}
