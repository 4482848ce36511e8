// Package csvimport reads transactions from header-driven CSV files.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

// Column names. Date and amount are required, as is at least one of
// merchant and description.
const (
	ColumnID          = "id"
	ColumnDate        = "date"
	ColumnMerchant    = "merchant"
	ColumnDescription = "description"
	ColumnAmount      = "amount"
	ColumnCategory    = "category"
)

// DateLayouts are tried in order when parsing the date column.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// Options configure a Reader.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// SkipInvalid logs and skips malformed rows instead of failing.
	SkipInvalid bool
}

// Reader parses transaction CSV files.
type Reader struct {
	logger *slog.Logger
	opts   Options
}

// NewReader creates a CSV reader.
func NewReader(opts Options) *Reader {
	return &Reader{opts: opts, logger: slog.Default()}
}

// Read parses every row of r. Rows without an id get a random UUID;
// amounts keep their sign; an "Unknown" category is treated as none.
func (c *Reader) Read(ctx context.Context, r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	if c.opts.Comma != 0 {
		cr.Comma = c.opts.Comma
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV file", common.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	var (
		txns    []model.Transaction
		skipped int
	)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		txn, err := cols.transaction(record)
		if err != nil {
			if c.opts.SkipInvalid {
				skipped++
				c.logger.Warn("Skipping CSV row", "line", line, "error", err)
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		txns = append(txns, txn)
	}

	c.logger.Info("Parsed CSV file", "transactions", len(txns), "skipped", skipped)
	return txns, nil
}

type columns map[string]int

func indexHeader(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", common.ErrInvalidInput, name)
		}
		cols[name] = i
	}

	for _, required := range []string{ColumnDate, ColumnAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", common.ErrInvalidInput, required)
		}
	}
	_, hasMerchant := cols[ColumnMerchant]
	_, hasDescription := cols[ColumnDescription]
	if !hasMerchant && !hasDescription {
		return nil, fmt.Errorf("%w: need a %q or %q column", common.ErrInvalidInput, ColumnMerchant, ColumnDescription)
	}
	return cols, nil
}

func (cols columns) get(record []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (cols columns) transaction(record []string) (model.Transaction, error) {
	date, err := parseDate(cols.get(record, ColumnDate))
	if err != nil {
		return model.Transaction{}, err
	}

	raw := strings.NewReplacer(",", "", "$", "").Replace(cols.get(record, ColumnAmount))
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: invalid amount %q", common.ErrInvalidInput, cols.get(record, ColumnAmount))
	}

	txn := model.Transaction{
		ID:          cols.get(record, ColumnID),
		Date:        date,
		Merchant:    cols.get(record, ColumnMerchant),
		Description: cols.get(record, ColumnDescription),
		Amount:      amount,
	}
	if category := cols.get(record, ColumnCategory); model.IsLabel(category) {
		txn.Category = category
	}
	if txn.Merchant == "" && txn.Description == "" {
		return model.Transaction{}, fmt.Errorf("%w: merchant and description are both empty", common.ErrInvalidInput)
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	return txn, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is empty", common.ErrInvalidInput)
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", common.ErrInvalidInput, s)
}
