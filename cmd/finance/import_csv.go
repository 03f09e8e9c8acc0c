package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fascinih/finance-app/internal/cli"
	"github.com/fascinih/finance-app/internal/csvimport"
	"github.com/fascinih/finance-app/internal/model"
)

func importCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-csv [files...]",
		Short: "Import transactions from CSV files",
		Long: `Import financial transactions from CSV exports.

The header row must contain date, amount and description. The optional
columns type (debit/credit), category, counterpart_name and account_id are
used when present; category and counterpart_name feed the category and
merchant suggestions of detected patterns. Comma and semicolon separators,
ISO and dd/mm/yyyy dates, and Brazilian amounts (1.234,56) are accepted.

Example file:
  date,amount,description,type,category,counterpart_name
  2024-01-15,-50.00,Supermercado ABC,debit,Alimentação,Supermercado ABC

Examples:
  finance import-csv ~/Downloads/extrato.csv
  finance import-csv --account nubank --dry-run ~/Downloads/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportCSV,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().String("account", "", "Account id for rows without an account_id column")

	return cmd
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	account, _ := cmd.Flags().GetString("account")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	slog.Info("Importing CSV files",
		"file_count", len(files),
		"dry_run", dryRun)

	parser := csvimport.NewParser(account)
	bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(files), "Parsing spreadsheets...")

	var transactions []model.Transaction
	seen := make(map[string]bool)
	failed, skipped := 0, 0

	for _, path := range files {
		result, err := parseCSVFile(cmd, parser, path)
		if err != nil {
			slog.Error("Failed to import file", "file", path, "error", err)
			failed++
		}
		skipped += len(result.Skipped)

		for _, tx := range result.Transactions {
			if !seen[tx.Hash] {
				seen[tx.Hash] = true
				transactions = append(transactions, tx)
			}
		}

		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	if skipped > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf(
			"Skipped %d malformed row(s); see the log for details", skipped)))
	}

	return finishImport(cmd, transactions, failed, dryRun)
}

func parseCSVFile(cmd *cobra.Command, parser *csvimport.Parser, path string) (csvimport.Result, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied statement path
	if err != nil {
		return csvimport.Result{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(cmd.Context(), f)
}
