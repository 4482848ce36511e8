package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/pattern"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

// CreateRule validates and stores a new rule.
func (e *Engine) CreateRule(ctx context.Context, rule model.Rule) (*model.Rule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		rule.Name = defaultRuleName(rule)
	}
	if err := pattern.Validate(rule); err != nil {
		return nil, err
	}
	if rule.Source == "" {
		rule.Source = model.RuleSourceManual
	}

	if err := e.storage.CreateRule(ctx, &rule); err != nil {
		return nil, err
	}
	e.logger.Info("Created rule", "id", rule.ID, "name", rule.Name, "category", rule.Then.Category)
	return &rule, nil
}

// GetRule returns a rule by ID.
func (e *Engine) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	return e.storage.GetRule(ctx, id)
}

// ListRules returns all rules in evaluation order.
func (e *Engine) ListRules(ctx context.Context) ([]model.Rule, error) {
	return e.storage.ListRules(ctx)
}

// UpdateRule applies patch to a rule. Enabling, disabling and category
// changes record feedback for the rule's pair in the same transaction.
func (e *Engine) UpdateRule(ctx context.Context, id int64, patch model.RulePatch) (*model.Rule, error) {
	var updated model.Rule
	err := storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		before, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}

		updated = patch.Apply(*before)
		if err := pattern.Validate(updated); err != nil {
			return err
		}
		if err := tx.UpdateRule(ctx, &updated); err != nil {
			return err
		}

		e.recorder.RecordInTx(ctx, tx, feedback.RuleUpdateSignals(before, &updated)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Updated rule", "id", id, "enabled", updated.Enabled, "category", updated.Then.Category)
	return &updated, nil
}

// SetRuleEnabled enables or disables a rule.
func (e *Engine) SetRuleEnabled(ctx context.Context, id int64, enabled bool) (*model.Rule, error) {
	return e.UpdateRule(ctx, id, model.RulePatch{Enabled: &enabled})
}

// DeleteRule removes a rule and records a strong rejection for its pair.
func (e *Engine) DeleteRule(ctx context.Context, id int64) error {
	err := storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		rule, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteRule(ctx, id); err != nil {
			return err
		}

		e.recorder.RecordInTx(ctx, tx, feedback.RuleDeleteSignals(rule)...)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Deleted rule", "id", id)
	return nil
}

// TestRule evaluates a draft rule against stored transactions, optionally
// limited to the calendar month containing month.
func (e *Engine) TestRule(ctx context.Context, draft model.Rule, month *time.Time, sampleSize int) (pattern.TestResult, error) {
	if strings.TrimSpace(draft.Name) == "" {
		draft.Name = defaultRuleName(draft)
	}
	if err := pattern.Validate(draft); err != nil {
		return pattern.TestResult{}, err
	}

	filter := service.TransactionFilter{}
	if month != nil {
		start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		filter.StartDate = &start
		filter.EndDate = &end
	}

	txns, err := e.storage.GetTransactions(ctx, filter)
	if err != nil {
		return pattern.TestResult{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	return pattern.Test(draft, txns, sampleSize), nil
}

func defaultRuleName(rule model.Rule) string {
	subject := strings.TrimSpace(rule.When.MerchantLike)
	if subject == "" {
		subject = strings.TrimSpace(rule.When.DescriptionLike)
	}
	return fmt.Sprintf("%s -> %s", subject, strings.TrimSpace(rule.Then.Category))
}
