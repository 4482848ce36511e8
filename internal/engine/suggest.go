package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/pattern"
	"github.com/Veraticus/finrules/internal/scoring"
	"github.com/Veraticus/finrules/internal/service"
)

// Suggest ranks category candidates for a transaction. The list is empty
// when neither a rule nor the merchant's history offers a signal.
func (e *Engine) Suggest(ctx context.Context, txnID string) (model.Candidates, error) {
	txn, err := e.storage.GetTransactionByID(ctx, txnID)
	if err != nil {
		return nil, err
	}

	rules, err := e.storage.GetEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	input, err := e.scoringInput(ctx, *txn, pattern.NewMatcher(rules))
	if err != nil {
		return nil, err
	}
	return e.scorer.Score(input), nil
}

func (e *Engine) scoringInput(ctx context.Context, txn model.Transaction, matcher *pattern.Matcher) (scoring.Input, error) {
	input := scoring.Input{
		Transaction: txn,
		RuleMatch:   matcher.Match(txn),
	}

	if txn.MerchantCanonical == "" {
		return input, nil
	}

	history, err := e.storage.GetMerchantHistory(ctx, txn.MerchantCanonical, e.historySince(), txn.ID)
	if err != nil {
		return input, fmt.Errorf("failed to load merchant history: %w", err)
	}
	input.History = history

	stats, err := e.storage.GetFeedbackStats(ctx, txn.MerchantCanonical)
	if err != nil {
		return input, fmt.Errorf("failed to load feedback stats: %w", err)
	}
	input.Feedback = make(map[string]model.FeedbackStat, len(stats))
	for _, s := range stats {
		input.Feedback[s.Category] = s
	}

	input.ML = e.model.Load().Probabilities(txn)
	return input, nil
}

// RetrainModel rebuilds the naive-Bayes model from labeled history and
// swaps it in atomically. With fewer than two categories the model is
// cleared and zero examples are reported.
func (e *Engine) RetrainModel(ctx context.Context) (int, error) {
	since := e.historySince()
	txns, err := e.storage.GetTransactions(ctx, service.TransactionFilter{StartDate: &since, OnlyCategorized: true})
	if err != nil {
		return 0, fmt.Errorf("failed to load training data: %w", err)
	}

	m, err := scoring.TrainBayes(txns)
	if errors.Is(err, scoring.ErrInsufficientClasses) {
		e.model.Store(nil)
		e.logger.Info("Not enough categories to train model", "transactions", len(txns))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	e.model.Store(m)
	e.logger.Info("Retrained categorization model",
		"examples", m.Examples(),
		"classes", len(m.Classes()))
	return m.Examples(), nil
}

// ModelLoaded reports whether a trained model is in use.
func (e *Engine) ModelLoaded() bool {
	return e.model.Load() != nil
}
