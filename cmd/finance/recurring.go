package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fascinih/finance-app/internal/cache"
	"github.com/fascinih/finance-app/internal/cli"
	"github.com/fascinih/finance-app/internal/common"
	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/recurring"
	"github.com/fascinih/finance-app/internal/tui"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Detect, mark, and forecast recurring transactions",
		Long: `Find transactions that repeat on a schedule and manage them.

Typical flow:
  finance recurring detect          # review detected patterns
  finance recurring apply 3f2a9c1b  # mark one of them as recurring
  finance recurring review          # or pick them interactively
  finance recurring forecast        # see what is coming next`,
	}

	cmd.AddCommand(recurringDetectCmd())
	cmd.AddCommand(recurringApplyCmd())
	cmd.AddCommand(recurringReviewCmd())
	cmd.AddCommand(recurringForecastCmd())
	cmd.AddCommand(recurringListCmd())
	cmd.AddCommand(recurringUnmarkCmd())
	cmd.AddCommand(recurringDaemonCmd())

	return cmd
}

func recurringDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect recurring patterns among unmarked transactions",
		Long: `Scan the lookback window for groups of similar transactions that repeat
at a regular interval. Detected patterns are kept for later review; use
'finance recurring apply' to mark them.`,
		RunE: runRecurringDetect,
	}

	cmd.Flags().Int("days-back", 0, "Lookback window in days (default from config)")
	cmd.Flags().Float64("min-confidence", 0, "Minimum confidence of reported patterns (default from config)")
	cmd.Flags().Bool("apply", false, "Mark every detected pattern immediately")
	cmd.Flags().Bool("json", false, "Print patterns as JSON")

	return cmd
}

func runRecurringDetect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	daysBack, _ := cmd.Flags().GetInt("days-back")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	apply, _ := cmd.Flags().GetBool("apply")
	asJSON, _ := cmd.Flags().GetBool("json")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly("database", store)

	detector, err := newDetector(store, func(opts *recurring.Options) {
		if daysBack > 0 {
			opts.LookbackDays = daysBack
		}
		if cmd.Flags().Changed("min-confidence") {
			opts.MinConfidence = minConfidence
		}
	})
	if err != nil {
		return err
	}

	if apply {
		return detectAndApply(cmd, detector, asJSON)
	}

	patterns, err := detector.Detect(ctx)
	if err != nil {
		return err
	}

	run := cache.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Patterns:  patterns,
	}

	if len(patterns) > 0 {
		runCache, err := initCache(store)
		if err != nil {
			return err
		}
		defer closeQuietly("cache", runCache)

		if err := runCache.Put(ctx, run, appConfig.Cache.TTL); err != nil {
			return fmt.Errorf("failed to store detection run: %w", err)
		}
	}

	if asJSON {
		return writeJSON(out, run)
	}

	fmt.Fprintln(out, cli.FormatTitle(cli.RecurringIcon, "Recurring Patterns"))
	if err := cli.RenderPatterns(out, patterns); err != nil {
		return err
	}
	if len(patterns) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf(
		"Run %s saved. Mark patterns with: finance recurring apply <id>... or --all", run.ID)))
	return nil
}

// detectAndApply detects and marks in one Runner pass, the same path the
// daemon's auto-mark takes.
func detectAndApply(cmd *cobra.Command, detector *recurring.Detector, asJSON bool) error {
	out := cmd.OutOrStdout()

	runner := recurring.NewRunner(detector, recurring.RunnerConfig{MarkAll: true})
	result, err := runner.Run(cmd.Context(), runnerKey)
	if err != nil {
		return markError(err)
	}

	if asJSON {
		return writeJSON(out, result)
	}

	fmt.Fprintln(out, cli.FormatTitle(cli.RecurringIcon, "Recurring Patterns"))
	if err := cli.RenderPatterns(out, result.Patterns); err != nil {
		return err
	}
	if len(result.Patterns) == 0 {
		return nil
	}

	byID := make(map[string]model.RecurringPattern, len(result.Patterns))
	for _, p := range result.Patterns {
		byID[p.PatternID] = p
	}
	for _, marked := range result.MarkedGroups {
		printMarked(out, byID[marked.PatternID], marked)
	}
	printMarkTotal(out, result.Marked, len(result.MarkedGroups))
	return nil
}

func recurringApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [pattern-id...]",
		Short: "Mark detected patterns as recurring",
		Long: `Mark the transactions of previously detected patterns as recurring.
Pattern ids may be shortened to any unique prefix. Patterns come from the
latest detection run unless --run is given.`,
		RunE: runRecurringApply,
	}

	cmd.Flags().Bool("all", false, "Apply every pattern of the run")
	cmd.Flags().String("run", "", "Detection run id (default: latest)")

	return cmd
}

func runRecurringApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	runID, _ := cmd.Flags().GetString("run")

	if all == (len(args) > 0) {
		return common.NewUserError("specify pattern ids or --all, not both", nil)
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

	run, err := loadRun(cmd, runCache, runID)
	if err != nil {
		return err
	}

	patterns := run.Patterns
	if !all {
		patterns = make([]model.RecurringPattern, 0, len(args))
		for _, id := range args {
			p, err := run.Pattern(id)
			if err != nil {
				return common.NewUserError("unknown pattern "+id, err)
			}
			patterns = append(patterns, p)
		}
	}

	detector, err := newDetector(store, nil)
	if err != nil {
		return err
	}

	return applyPatterns(cmd, detector, patterns)
}

// loadRun fetches runID, or the latest run when runID is empty.
func loadRun(cmd *cobra.Command, runCache cache.PatternCache, runID string) (cache.Run, error) {
	var (
		run cache.Run
		err error
	)
	if runID != "" {
		run, err = runCache.Get(cmd.Context(), runID)
	} else {
		run, err = runCache.Latest(cmd.Context())
	}
	if err != nil {
		if cache.IsMiss(err) {
			return cache.Run{}, common.NewUserError("no detection run found; run 'finance recurring detect' first", err)
		}
		return cache.Run{}, err
	}
	return run, nil
}

func recurringReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Interactively choose detected patterns to mark",
		Long: `Open the patterns of a detection run in an interactive list. Select
patterns with space (or 'a' for all) and press enter to mark them as
recurring; q cancels without changes.`,
		Args: cobra.NoArgs,
		RunE: runRecurringReview,
	}

	cmd.Flags().String("run", "", "Detection run id (default: latest)")

	return cmd
}

func runRecurringReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runID, _ := cmd.Flags().GetString("run")

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

	run, err := loadRun(cmd, runCache, runID)
	if err != nil {
		return err
	}

	selected, err := tui.Review(ctx, run.Patterns,
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No patterns marked."))
		return nil
	}

	detector, err := newDetector(store, nil)
	if err != nil {
		return err
	}
	return applyPatterns(cmd, detector, selected)
}

// applyPatterns marks each pattern, stopping at the first failure. Patterns
// marked before the failure stay marked.
func applyPatterns(cmd *cobra.Command, detector *recurring.Detector, patterns []model.RecurringPattern) error {
	out := cmd.OutOrStdout()
	total := 0

	for _, p := range patterns {
		result, err := detector.Mark(cmd.Context(), p)
		if err != nil {
			return markError(err)
		}

		total += result.Updated
		printMarked(out, p, result)
	}

	printMarkTotal(out, total, len(patterns))
	return nil
}

// markError turns a stale-pattern failure into a user error.
func markError(err error) error {
	var missing *common.MissingTransactionsError
	if errors.As(err, &missing) {
		return common.NewUserError(fmt.Sprintf(
			"a pattern refers to %d transaction(s) that no longer exist (%s); detect again",
			len(missing.IDs), strings.Join(missing.IDs, ", ")), err)
	}
	return err
}

func printMarked(w io.Writer, p model.RecurringPattern, result recurring.MarkResult) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("%s: marked %d transactions as %s (group %s)",
		p.DescriptionPattern, result.Updated, p.FrequencyType, result.GroupID)))
}

func printMarkTotal(w io.Writer, total, patterns int) {
	fmt.Fprintln(w, cli.BoldStyle.Render(fmt.Sprintf("Marked %d transactions in %d pattern(s)", total, patterns)))
}

func recurringForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project upcoming recurring transactions",
		RunE:  runRecurringForecast,
	}

	cmd.Flags().Int("days", 0, "Forecast horizon in days (default from config)")
	cmd.Flags().Bool("json", false, "Print forecasts as JSON")

	return cmd
}

func runRecurringForecast(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	days, _ := cmd.Flags().GetInt("days")
	asJSON, _ := cmd.Flags().GetBool("json")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly("database", store)

	detector, err := newDetector(store, nil)
	if err != nil {
		return err
	}

	forecasts, err := detector.Forecast(ctx, days)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(out, forecasts)
	}

	fmt.Fprintln(out, cli.FormatTitle(cli.ForecastIcon, "Upcoming Recurring Transactions"))
	return cli.RenderForecasts(out, forecasts)
}

func recurringListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List marked recurring groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly("database", store)

			groups, err := store.GetRecurringGroups(ctx)
			if err != nil {
				return err
			}
			return renderGroups(cmd.OutOrStdout(), groups)
		},
	}
}

func renderGroups(w io.Writer, groups []model.RecurringGroup) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, cli.FormatInfo("No recurring groups yet."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		cli.TableHeaderStyle.Render("Group"),
		cli.TableHeaderStyle.Render("Frequency"),
		cli.TableHeaderStyle.Render("Txns"),
		cli.TableHeaderStyle.Render("Last"),
		cli.TableHeaderStyle.Render("Description")); err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			g.GroupID,
			g.Pattern,
			g.Count,
			g.Last.Date.Format(model.DateLayout),
			g.Last.Description); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func recurringUnmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmark <group-id>",
		Short: "Clear the recurring flag from every transaction of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly("database", store)

			cleared, err := store.UnmarkRecurringGroup(ctx, args[0])
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("no recurring group "+args[0], err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Unmarked %d transactions", cleared)))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
