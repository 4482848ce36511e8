// Package scoring ranks category candidates for a transaction by blending a
// matched rule, the merchant's category history, naive-Bayes probabilities,
// and accumulated user feedback.
package scoring

import (
	"errors"
	"fmt"
)

// ErrInvalidWeights is returned by Weights.Validate.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Weights are the tuning coefficients of the Scorer.
type Weights struct {
	// RuleConfidence is assigned to the category of a matched rule.
	RuleConfidence float64
	// HistoryWeight multiplies the category's historical share.
	HistoryWeight float64
	// HistoryCap bounds every non-rule candidate; must stay below RuleConfidence.
	HistoryCap float64
	// HistoryWindowDays is the trailing window used for history stats.
	HistoryWindowDays int
	// FeedbackWeight scales the net accept/reject ratio.
	FeedbackWeight float64
	// FeedbackPrior damps the ratio for pairs with little feedback.
	FeedbackPrior float64
	// MLWeight multiplies naive-Bayes probabilities.
	MLWeight float64
	// VisibilityFloor drops non-rule candidates below it.
	VisibilityFloor float64
	// MaxCandidates truncates the ranked list.
	MaxCandidates int
}

// DefaultWeights returns the shipped coefficients.
func DefaultWeights() Weights {
	return Weights{
		RuleConfidence:    0.99,
		HistoryWeight:     1.0,
		HistoryCap:        0.95,
		HistoryWindowDays: 365,
		FeedbackWeight:    0.25,
		FeedbackPrior:     2,
		MLWeight:          0.3,
		VisibilityFloor:   0.05,
		MaxCandidates:     5,
	}
}

// Validate reports out-of-range coefficients.
func (w Weights) Validate() error {
	switch {
	case w.RuleConfidence <= 0 || w.RuleConfidence > 1:
		return fmt.Errorf("%w: rule_confidence must be in (0, 1]", ErrInvalidWeights)
	case w.HistoryCap < 0 || w.HistoryCap >= w.RuleConfidence:
		return fmt.Errorf("%w: history_cap must be in [0, rule_confidence)", ErrInvalidWeights)
	case w.HistoryWeight < 0, w.FeedbackWeight < 0, w.MLWeight < 0, w.FeedbackPrior < 0:
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	case w.VisibilityFloor < 0 || w.VisibilityFloor >= 1:
		return fmt.Errorf("%w: visibility_floor must be in [0, 1)", ErrInvalidWeights)
	case w.MaxCandidates < 1:
		return fmt.Errorf("%w: max_candidates must be at least 1", ErrInvalidWeights)
	case w.HistoryWindowDays < 1:
		return fmt.Errorf("%w: history_window_days must be at least 1", ErrInvalidWeights)
	}
	return nil
}
