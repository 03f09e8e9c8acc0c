// Package ofx imports bank and credit card statements in OFX/QFX format.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/fascinih/finance-app/internal/model"
)

// ImportSource tags transactions created by this parser.
const ImportSource = "ofx"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags missing their closing bracket at end of line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	// Leading "dd/mm" stamps some banks prepend to the description.
	leadingDateRegex = regexp.MustCompile(`^\d{2}/\d{2}\s+`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	// Trim any leading whitespace or blank lines before the header
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN, or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file and returns transactions.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			transactions = append(transactions, p.convertList(stmt.BankTranList, string(stmt.BankAcctFrom.AcctID))...)
		}
	}

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			transactions = append(transactions, p.convertList(stmt.BankTranList, string(stmt.CCAcctFrom.AcctID))...)
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID string) []model.Transaction {
	if list == nil {
		return nil
	}

	transactions := make([]model.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		tx, ok := p.convertTransaction(ofxTx, accountID)
		if !ok {
			slog.Warn("Skipping OFX transaction without description",
				"account", accountID,
				"fitid", string(ofxTx.FiTID))
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions
}

// convertTransaction converts an OFX transaction to our model. Amounts keep
// their sign: OFX uses negative values for debits.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (model.Transaction, bool) {
	description := p.extractDescription(ofxTx)
	if description == "" {
		return model.Transaction{}, false
	}

	tx := model.Transaction{
		ID:              string(ofxTx.FiTID),
		Date:            model.TruncateDate(ofxTx.DtPosted.Time),
		Amount:          decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2),
		Description:     description,
		CounterpartName: p.extractCounterpart(ofxTx),
		Category:        categoryForType(ofxTx.TrnType),
		AccountID:       accountID,
		ImportSource:    ImportSource,
	}

	tx.Hash = tx.GenerateHash()

	// Some banks omit FITID; the content hash stands in for it.
	if tx.ID == "" {
		tx.ID = tx.Hash[:16]
	}

	return tx, true
}

// extractDescription picks the most informative free-text field.
func (p *Parser) extractDescription(tx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(tx.Name))
	memo := strings.TrimSpace(string(tx.Memo))

	// Brazilian banks often send a generic NAME and the real text in MEMO.
	if name == "" || (memo != "" && isGenericDescription(name)) {
		name = memo
	}

	name = leadingDateRegex.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// extractCounterpart returns the PAYEE name when the file carries one.
func (p *Parser) extractCounterpart(tx ofxgo.Transaction) string {
	if tx.Payee != nil {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	return strings.TrimSpace(string(tx.PayeeID))
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PAYMENT", "PURCHASE",
		"DEBITO", "DÉBITO", "CREDITO", "CRÉDITO",
		"PAGAMENTO", "COMPRA", "TRANSFERENCIA", "TRANSFERÊNCIA":
		return true
	}
	return false
}

// categoryForType infers a category from the few transaction types that
// imply one.
func categoryForType(trnType any) string {
	switch trnType {
	case ofxgo.TrnTypeInt, ofxgo.TrnTypeDiv:
		return "Rendimentos"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "Tarifas Bancárias"
	case ofxgo.TrnTypeATM, ofxgo.TrnTypeCash:
		return "Saques"
	}
	return ""
}

// GetAccounts extracts unique account IDs from the OFX file, sorted.
func (p *Parser) GetAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	accountMap := make(map[string]bool)

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			accountMap[string(stmt.BankAcctFrom.AcctID)] = true
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			accountMap[string(stmt.CCAcctFrom.AcctID)] = true
		}
	}

	accounts := make([]string, 0, len(accountMap))
	for acct := range accountMap {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)

	return accounts, nil
}
