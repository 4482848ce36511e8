package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/mining"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/pattern"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

// MineResult reports a mining pass.
type MineResult struct {
	Created    []model.RuleSuggestion `json:"created"`
	Candidates int                    `json:"candidates"`
	Existing   int                    `json:"existing"`
}

// MineSuggestions scans history with opts and persists new suggestions.
// Re-running on unchanged data creates nothing: pairs with a pending or
// accepted suggestion are skipped, and the insert itself is a no-op when a
// pending suggestion for the pair already exists.
func (e *Engine) MineSuggestions(ctx context.Context, opts mining.Options) (MineResult, error) {
	if err := opts.Validate(); err != nil {
		return MineResult{}, err
	}

	since := e.now().AddDate(0, 0, -opts.WindowDays)
	counts, err := e.storage.GetMerchantCategoryCounts(ctx, since)
	if err != nil {
		return MineResult{}, fmt.Errorf("failed to load history: %w", err)
	}
	rules, err := e.storage.GetEnabledRules(ctx)
	if err != nil {
		return MineResult{}, fmt.Errorf("failed to load rules: %w", err)
	}
	ignores, err := e.storage.ListSuggestionIgnores(ctx)
	if err != nil {
		return MineResult{}, fmt.Errorf("failed to load ignores: %w", err)
	}
	suggestions, err := e.storage.ListRuleSuggestions(ctx, "")
	if err != nil {
		return MineResult{}, fmt.Errorf("failed to load suggestions: %w", err)
	}

	candidates, err := mining.Mine(counts, opts, mining.Existing{
		Rules:       pattern.NewMatcher(rules),
		Ignored:     ignores,
		Suggestions: suggestions,
	})
	if err != nil {
		return MineResult{}, err
	}

	result := MineResult{Created: []model.RuleSuggestion{}, Candidates: len(candidates)}
	err = storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		for i := range candidates {
			inserted, err := tx.InsertRuleSuggestion(ctx, &candidates[i])
			if err != nil {
				return err
			}
			if !inserted {
				result.Existing++
				continue
			}
			result.Created = append(result.Created, candidates[i])
		}
		return nil
	})
	if err != nil {
		return MineResult{}, err
	}

	e.logger.Info("Mined rule suggestions",
		"window_days", opts.WindowDays,
		"candidates", result.Candidates,
		"created", len(result.Created))
	return result, nil
}

// ListSuggestions returns suggestions with status, or all when empty.
func (e *Engine) ListSuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.RuleSuggestion, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrInvalidInput, status)
	}
	return e.storage.ListRuleSuggestions(ctx, status)
}

// AcceptSuggestion promotes a new suggestion into an enabled rule. A
// suggestion that is already resolved yields common.ErrAlreadyResolved and
// never a second rule.
func (e *Engine) AcceptSuggestion(ctx context.Context, id int64) (*model.Rule, error) {
	var rule model.Rule
	err := storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		s, err := tx.GetRuleSuggestion(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != model.SuggestionNew {
			return fmt.Errorf("rule suggestion %d is %s: %w", id, s.Status, common.ErrAlreadyResolved)
		}

		rule = model.Rule{
			Name:    fmt.Sprintf("%s -> %s", s.Merchant, s.Category),
			Enabled: true,
			Source:  model.RuleSourceSuggestion,
			When:    model.RuleWhen{MerchantLike: s.Merchant},
			Then:    model.RuleThen{Category: s.Category},
		}
		if err := pattern.Validate(rule); err != nil {
			return err
		}
		if err := tx.CreateRule(ctx, &rule); err != nil {
			return err
		}
		if err := tx.ResolveRuleSuggestion(ctx, id, model.SuggestionAccepted, &rule.ID); err != nil {
			return err
		}

		e.recorder.RecordInTx(ctx, tx, feedback.SuggestionSignals(s, true, &rule.ID)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Accepted rule suggestion", "suggestion_id", id, "rule_id", rule.ID)
	return &rule, nil
}

// DismissSuggestion resolves a new suggestion as dismissed and ignores its
// pair for future mining.
func (e *Engine) DismissSuggestion(ctx context.Context, id int64) error {
	err := storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		s, err := tx.GetRuleSuggestion(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.ResolveRuleSuggestion(ctx, id, model.SuggestionDismissed, nil); err != nil {
			return err
		}
		if err := tx.AddSuggestionIgnore(ctx, s.Merchant, s.Category); err != nil {
			return err
		}

		e.recorder.RecordInTx(ctx, tx, feedback.SuggestionSignals(s, false, nil)...)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Dismissed rule suggestion", "suggestion_id", id)
	return nil
}

// ListIgnores returns the ignore list.
func (e *Engine) ListIgnores(ctx context.Context) ([]model.SuggestionIgnore, error) {
	return e.storage.ListSuggestionIgnores(ctx)
}

// AddIgnore suppresses future suggestions for a pair.
func (e *Engine) AddIgnore(ctx context.Context, merchantName, category string) error {
	key, cat, err := ignorePair(merchantName, category)
	if err != nil {
		return err
	}
	return e.storage.AddSuggestionIgnore(ctx, key, cat)
}

// RemoveIgnore lifts the suppression for a pair.
func (e *Engine) RemoveIgnore(ctx context.Context, merchantName, category string) error {
	key, cat, err := ignorePair(merchantName, category)
	if err != nil {
		return err
	}
	return e.storage.RemoveSuggestionIgnore(ctx, key, cat)
}

func ignorePair(merchantName, category string) (string, string, error) {
	key, ok := merchant.Canonicalize(merchantName)
	if !ok {
		return "", "", fmt.Errorf("%w: merchant is empty", common.ErrInvalidInput)
	}
	category = strings.TrimSpace(category)
	if !model.IsLabel(category) {
		return "", "", fmt.Errorf("%w: category %q is not a label", common.ErrInvalidInput, category)
	}
	return key, category, nil
}
