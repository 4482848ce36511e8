package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
)

const transactionColumns = `id, date, merchant, merchant_canonical, description, amount,
	category, created_at, updated_at, deleted_at`

// SaveTransactions upserts transactions by ID. The canonical merchant is
// recomputed on every write; an incoming empty category keeps the stored one.
func (s *Store) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.inTx(ctx, func(st *Store) error {
		return st.saveTransactions(ctx, transactions)
	})
}

func (s *Store) saveTransactions(ctx context.Context, transactions []model.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (id) DO UPDATE SET
			date = excluded.date,
			merchant = excluded.merchant,
			merchant_canonical = excluded.merchant_canonical,
			description = excluded.description,
			amount = excluded.amount,
			category = COALESCE(excluded.category, transactions.category),
			updated_at = excluded.updated_at
	`

	now := s.now()
	for i := range transactions {
		txn := transactions[i]
		if _, err := s.exec(ctx, query,
			txn.ID,
			txn.Date.UTC(),
			strings.TrimSpace(txn.Merchant),
			merchant.Key(txn.Merchant),
			strings.TrimSpace(txn.Description),
			txn.Amount,
			nullString(labelOrEmpty(txn.Category)),
			now,
			now,
		); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// GetTransactionByID retrieves a transaction, including soft-deleted ones.
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching filter ordered by date.
func (s *Store) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "date < ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.MerchantCanonical != "" {
		where = append(where, "merchant_canonical = ?")
		args = append(args, filter.MerchantCanonical)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.OnlyCategorized {
		where = append(where, "category IS NOT NULL")
	}
	if filter.OnlyUncategorized {
		where = append(where, "category IS NULL")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// UpdateTransactionCategory sets or clears (empty category) a transaction's label.
func (s *Store) UpdateTransactionCategory(ctx context.Context, id, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.exec(ctx,
		`UPDATE transactions SET category = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		nullString(labelOrEmpty(category)), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	return expectAffected(result, "transaction "+id)
}

// DeleteTransaction soft-deletes a transaction.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	now := s.now()
	result, err := s.exec(ctx,
		`UPDATE transactions SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectAffected(result, "transaction "+id)
}

// PurgeDeletedTransactions hard-deletes rows soft-deleted before the cutoff.
func (s *Store) PurgeDeletedTransactions(ctx context.Context, before time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.exec(ctx,
		`DELETE FROM transactions WHERE deleted_at IS NOT NULL AND deleted_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge transactions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged transactions: %w", err)
	}
	return n, nil
}

// GetMerchantHistory counts a canonical merchant's categorized transactions
// by category since the given time, excluding excludeID.
func (s *Store) GetMerchantHistory(ctx context.Context, merchantCanonical string, since time.Time, excludeID string) (map[string]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	history := make(map[string]int)
	if merchantCanonical == "" {
		return history, nil
	}

	rows, err := s.query(ctx, `
		SELECT category, COUNT(*)
		FROM transactions
		WHERE merchant_canonical = ?
			AND deleted_at IS NULL
			AND category IS NOT NULL
			AND date >= ?
			AND id <> ?
		GROUP BY category
	`, merchantCanonical, since.UTC(), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan merchant history: %w", err)
		}
		if model.IsLabel(category) {
			history[category] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant history: %w", err)
	}
	return history, nil
}

// GetMerchantCategoryCounts aggregates categorized transactions since the
// given time by (canonical merchant, category), ordered by merchant.
func (s *Store) GetMerchantCategoryCounts(ctx context.Context, since time.Time) ([]model.MerchantCategoryCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT merchant_canonical, category, COUNT(*)
		FROM transactions
		WHERE deleted_at IS NULL
			AND merchant_canonical <> ''
			AND category IS NOT NULL
			AND date >= ?
		GROUP BY merchant_canonical, category
		ORDER BY merchant_canonical, category
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant category counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.MerchantCategoryCount
	for rows.Next() {
		var c model.MerchantCategoryCount
		if err := rows.Scan(&c.Merchant, &c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan merchant category count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant category counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn       model.Transaction
		category  sql.NullString
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&txn.ID, &txn.Date, &txn.Merchant, &txn.MerchantCanonical, &txn.Description, &txn.Amount,
		&category, &txn.CreatedAt, &txn.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	txn.Category = category.String
	if deletedAt.Valid {
		t := deletedAt.Time
		txn.DeletedAt = &t
	}
	return &txn, nil
}
