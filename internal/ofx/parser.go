// Package ofx imports transactions from OFX and QFX statement files.
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

	"github.com/Veraticus/finrules/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// An SGML opening tag alone on a line with its closing bracket missing.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	// A leading MM/DD date stamp.
	datePrefixRegex = regexp.MustCompile(`^\d{2}/\d{2}\s+`)
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericNames = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{logger: slog.Default()}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
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

// ParseFile parses an OFX/QFX file into uncategorized transactions. Bank
// and credit card statements are both read; amounts keep the file's sign.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))...)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) convertAll(ofxTxns []ofxgo.Transaction, accountID string) []model.Transaction {
	transactions := make([]model.Transaction, 0, len(ofxTxns))
	for _, ofxTx := range ofxTxns {
		tx, err := p.convertTransaction(ofxTx)
		if err != nil {
			p.logger.Warn("Skipping OFX transaction",
				"account", accountID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions
}

// convertTransaction converts an OFX transaction to our model.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction) (model.Transaction, error) {
	if ofxTx.FiTID == "" {
		return model.Transaction{}, fmt.Errorf("transaction has no FITID")
	}

	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" {
		description = strings.TrimSpace(description + " " + memo)
	}
	if ofxTx.CheckNum != "" {
		description = strings.TrimSpace(fmt.Sprintf("%s check %s", description, ofxTx.CheckNum))
	}

	return model.Transaction{
		ID:          string(ofxTx.FiTID),
		Date:        ofxTx.DtPosted.Time.UTC(),
		Merchant:    p.extractMerchantName(ofxTx),
		Description: description,
		Amount:      amount,
	}, nil
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && genericNames[strings.ToUpper(strings.TrimSpace(name))] {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	return strings.TrimSpace(datePrefixRegex.ReplaceAllString(name, ""))
}

// GetAccounts returns the sorted account IDs present in the file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
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

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}
