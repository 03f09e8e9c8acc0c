package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fascinih/finance-app/internal/cli"
	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import financial transactions from OFX or QFX files exported from your bank.

Examples:
  # Import single file
  finance import-ofx ~/Downloads/nubank-2025-01.ofx

  # Import all OFX files in a directory
  finance import-ofx ~/Downloads/*.ofx

  # Preview without saving
  finance import-ofx --dry-run ~/Downloads/itau/*.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	slog.Info("Importing OFX files",
		"file_count", len(files),
		"dry_run", dryRun)

	parser := ofx.NewParser()
	bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(files), "Parsing statements...")

	var transactions []model.Transaction
	seen := make(map[string]bool)
	failed := 0

	for _, path := range files {
		parsed, err := parseFile(cmd, parser, path)
		if err != nil {
			slog.Error("Failed to import file", "file", path, "error", err)
			failed++
		}

		for _, tx := range parsed {
			if !seen[tx.Hash] {
				seen[tx.Hash] = true
				transactions = append(transactions, tx)
			}
		}

		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	return finishImport(cmd, transactions, failed, dryRun)
}

// finishImport prints the summary and saves transactions unless dryRun.
func finishImport(cmd *cobra.Command, transactions []model.Transaction, failed int, dryRun bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(transactions) == 0 {
		if failed > 0 {
			return fmt.Errorf("no transactions imported, %d file(s) failed", failed)
		}
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file"))
		return nil
	}

	if err := printImportSummary(out, transactions); err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo("Dry run complete - no data saved"))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly("database", store)

	inserted, err := store.SaveTransactions(ctx, transactions)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d already present)",
		inserted, len(transactions)-inserted)))
	return nil
}

// expandFiles resolves globs, keeping plain paths that exist.
func expandFiles(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

func parseFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied statement path
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(cmd.Context(), f)
}

func printImportSummary(w io.Writer, transactions []model.Transaction) error {
	oldest, newest := transactions[0].Date, transactions[0].Date
	accounts := make(map[string]int)
	total := decimal.Zero

	for _, tx := range transactions {
		if tx.Date.Before(oldest) {
			oldest = tx.Date
		}
		if tx.Date.After(newest) {
			newest = tx.Date
		}
		accounts[tx.AccountID]++
		total = total.Add(tx.Amount)
	}

	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := []string{fmt.Sprintf("%d transactions from %s to %s (%d days), net %s",
		len(transactions),
		oldest.Format(model.DateLayout),
		newest.Format(model.DateLayout),
		model.DaysBetween(oldest, newest),
		cli.FormatAmount(total))}
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("  - account %s: %d transactions", orNone(id), accounts[id]))
	}

	_, err := fmt.Fprintln(w, cli.RenderBox(cli.ChartIcon+" Import Summary", strings.Join(lines, "\n")))
	return err
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
