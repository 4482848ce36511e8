package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/pattern"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

// ApplyResult summarizes an ApplyRules run.
type ApplyResult struct {
	Scanned     int `json:"scanned"`
	Categorized int `json:"categorized"`
}

// ProgressFunc is called after each transaction an ApplyRules run inspects.
type ProgressFunc func(done, total int)

// ImportTransactions upserts transactions and reports how many were saved.
func (e *Engine) ImportTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	if err := e.storage.SaveTransactions(ctx, txns); err != nil {
		return 0, err
	}
	e.logger.Info("Imported transactions", "count", len(txns))
	return len(txns), nil
}

// GetTransaction returns a transaction by ID.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return e.storage.GetTransactionByID(ctx, id)
}

// ListTransactions returns transactions matching filter.
func (e *Engine) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	return e.storage.GetTransactions(ctx, filter)
}

// CategorizeTransaction sets a transaction's category by hand and records
// the choice as feedback for the merchant.
func (e *Engine) CategorizeTransaction(ctx context.Context, id, category string) (*model.Transaction, error) {
	category = strings.TrimSpace(category)
	if !model.IsLabel(category) {
		return nil, fmt.Errorf("%w: category %q is not a label", common.ErrInvalidInput, category)
	}

	var updated *model.Transaction
	err := storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		txn, err := tx.GetTransactionByID(ctx, id)
		if err != nil {
			return err
		}
		if txn.IsDeleted() {
			return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
		}
		if err := tx.UpdateTransactionCategory(ctx, id, category); err != nil {
			return err
		}

		e.recorder.RecordInTx(ctx, tx, feedback.CategorizeSignals(txn, category)...)

		txn.Category = category
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyRules categorizes every uncategorized transaction matched by an
// enabled rule in one transaction and bumps each rule's use count.
func (e *Engine) ApplyRules(ctx context.Context, progress ProgressFunc) (ApplyResult, error) {
	rules, err := e.storage.GetEnabledRules(ctx)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("failed to load rules: %w", err)
	}
	txns, err := e.storage.GetTransactions(ctx, service.TransactionFilter{OnlyUncategorized: true})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	matcher := pattern.NewMatcher(rules)
	result := ApplyResult{}
	uses := make(map[int64]int)

	err = storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		for i := range txns {
			if err := ctx.Err(); err != nil {
				return err
			}
			result.Scanned++
			if rule := matcher.Match(txns[i]); rule != nil {
				if err := tx.UpdateTransactionCategory(ctx, txns[i].ID, rule.Then.Category); err != nil {
					return err
				}
				uses[rule.ID]++
				result.Categorized++
			}
			if progress != nil {
				progress(i+1, len(txns))
			}
		}
		for id, n := range uses {
			if err := tx.IncrementRuleUseCount(ctx, id, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	e.logger.Info("Applied rules", "scanned", result.Scanned, "categorized", result.Categorized)
	return result, nil
}

// DeleteTransaction soft-deletes a transaction.
func (e *Engine) DeleteTransaction(ctx context.Context, id string) error {
	return e.storage.DeleteTransaction(ctx, id)
}

// PurgeDeleted hard-deletes transactions soft-deleted more than olderThan ago.
func (e *Engine) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := e.storage.PurgeDeletedTransactions(ctx, e.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	e.logger.Info("Purged deleted transactions", "count", n)
	return n, nil
}
