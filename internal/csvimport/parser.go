// Package csvimport imports transactions from spreadsheet-style CSV exports.
//
// The header row names the columns. date, amount and description are
// required; type, category, counterpart_name, account_id, location and notes
// are optional. Comma and semicolon separated files are both accepted.
package csvimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/model"
)

// ImportSource tags transactions created by this parser.
const ImportSource = "csv"

// Column names recognized in the header row. Other columns, such as
// location and notes, are ignored.
const (
	ColumnDate        = "date"
	ColumnAmount      = "amount"
	ColumnDescription = "description"
	ColumnType        = "type"
	ColumnCategory    = "category"
	ColumnCounterpart = "counterpart_name"
	ColumnAccountID   = "account_id"
)

const (
	typeDebit  = "debit"
	typeCredit = "credit"

	maxReportedSkipped = 20
)

var utf8ByteOrderMark = []byte("\ufeff")

var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrEmptyFile is returned when the file has no header row.
	ErrEmptyFile = errors.New("empty CSV file")
)

var requiredColumns = []string{ColumnDate, ColumnAmount, ColumnDescription}

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	model.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// RowError describes a row that could not be imported.
type RowError struct {
	Err  error
	Line int
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Result holds the parsed transactions and the rows that were skipped.
type Result struct {
	Transactions []model.Transaction
	Skipped      []RowError
}

// Parser reads CSV transaction exports.
type Parser struct {
	// AccountID is used for rows without an account_id column value.
	AccountID string
}

// NewParser creates a CSV parser that assigns accountID to rows without one.
func NewParser(accountID string) *Parser {
	return &Parser{AccountID: accountID}
}

// ParseFile parses every row of reader. Malformed rows are skipped and
// reported in Result.Skipped; a missing required column fails the whole file.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) (Result, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read CSV file: %w", err)
	}
	content = bytes.TrimPrefix(content, utf8ByteOrderMark)

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = detectDelimiter(content)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, ErrEmptyFile
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns, err := indexColumns(header)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.StartLine
			}
			result.Skipped = append(result.Skipped, RowError{Line: line, Err: err})
			continue
		}
		if isBlank(record) {
			continue
		}
		line, _ := r.FieldPos(0)

		tx, err := p.convertRow(columns, record)
		if err != nil {
			result.Skipped = append(result.Skipped, RowError{Line: line, Err: err})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}

	for i, skipped := range result.Skipped {
		if i == maxReportedSkipped {
			slog.Warn("More CSV rows skipped", "count", len(result.Skipped)-i)
			break
		}
		slog.Warn("Skipping CSV row", "line", skipped.Line, "error", skipped.Err)
	}

	slog.Info("Parsed CSV file",
		"total_transactions", len(result.Transactions),
		"skipped_rows", len(result.Skipped))

	return result, nil
}

// columnIndex maps a column name to its position in the row.
type columnIndex map[string]int

func indexColumns(header []string) (columnIndex, error) {
	columns := make(columnIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return columns, nil
}

// get returns the trimmed value of column name, or "" when absent.
func (c columnIndex) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (p *Parser) convertRow(columns columnIndex, record []string) (model.Transaction, error) {
	date, err := parseDate(columns.get(record, ColumnDate))
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := parseAmount(columns.get(record, ColumnAmount))
	if err != nil {
		return model.Transaction{}, err
	}

	switch strings.ToLower(columns.get(record, ColumnType)) {
	case typeDebit:
		amount = amount.Abs().Neg()
	case typeCredit:
		amount = amount.Abs()
	}

	description := strings.Join(strings.Fields(columns.get(record, ColumnDescription)), " ")
	if description == "" {
		return model.Transaction{}, errors.New("empty description")
	}

	accountID := columns.get(record, ColumnAccountID)
	if accountID == "" {
		accountID = p.AccountID
	}

	tx := model.Transaction{
		Date:            date,
		Amount:          amount,
		Description:     description,
		CounterpartName: columns.get(record, ColumnCounterpart),
		Category:        columns.get(record, ColumnCategory),
		AccountID:       accountID,
		ImportSource:    ImportSource,
	}
	tx.Hash = tx.GenerateHash()
	tx.ID = tx.Hash[:16]

	return tx, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return model.TruncateDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// parseAmount accepts "1234.56", "-1,234.56" and Brazilian "1.234,56".
func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("R$", "", " ", "", "\u00a0", "").Replace(value)
	if cleaned == "" {
		return decimal.Zero, errors.New("empty amount")
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma > lastDot:
		// Comma is the decimal separator.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastComma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// detectDelimiter picks ';' when the header has more semicolons than commas.
func detectDelimiter(content []byte) rune {
	header := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		header = content[:i]
	}
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		return ';'
	}
	return ','
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
