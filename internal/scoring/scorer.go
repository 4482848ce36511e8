package scoring

import (
	"fmt"
	"math"

	"github.com/Veraticus/finrules/internal/model"
)

// Reason prefixes attached to candidates.
const (
	ReasonRule     = "rule"
	ReasonHistory  = "history"
	ReasonML       = "ml"
	ReasonFeedback = "feedback"
)

// Input carries every signal available for one transaction.
type Input struct {
	// RuleMatch is the first matching enabled rule, if any.
	RuleMatch *model.Rule
	// History counts past transactions of the same canonical merchant by
	// category within the trailing window.
	History map[string]int
	// Feedback holds the stats for the merchant keyed by category.
	Feedback map[string]model.FeedbackStat
	// ML holds per-category probabilities; nil when no model is loaded.
	ML          map[string]float64
	Transaction model.Transaction
}

// Scorer ranks category candidates. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer after validating w.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Weights returns the scorer's coefficients.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns candidates sorted by confidence descending and label
// ascending. Without a rule match and without history it returns an empty
// list; the ML signal alone never produces a guess.
func (s *Scorer) Score(in Input) model.Candidates {
	w := s.weights

	history := make(map[string]int, len(in.History))
	total := 0
	for category, n := range in.History {
		if !model.IsLabel(category) || n <= 0 {
			continue
		}
		history[category] += n
		total += n
	}

	hasRule := in.RuleMatch != nil && model.IsLabel(in.RuleMatch.Then.Category)
	if !hasRule && total == 0 {
		return model.Candidates{}
	}

	byCategory := make(map[string]*model.Candidate)
	get := func(category string) *model.Candidate {
		c, ok := byCategory[category]
		if !ok {
			c = &model.Candidate{Category: category, Reasons: []string{}}
			byCategory[category] = c
		}
		return c
	}

	if hasRule {
		c := get(in.RuleMatch.Then.Category)
		c.FromRule = true
		c.Confidence = w.RuleConfidence
		c.Reasons = append(c.Reasons, fmt.Sprintf("%s:%s", ReasonRule, in.RuleMatch.Name))
	}

	for category, n := range history {
		c := get(category)
		share := float64(n) / float64(total)
		if !c.FromRule {
			c.Confidence += share * w.HistoryWeight
		}
		c.Reasons = append(c.Reasons, fmt.Sprintf("%s:%d/%d", ReasonHistory, n, total))
	}

	for category, p := range in.ML {
		if !model.IsLabel(category) || math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			continue
		}
		c := get(category)
		if !c.FromRule {
			c.Confidence += p * w.MLWeight
		}
		c.Reasons = append(c.Reasons, fmt.Sprintf("%s:%.2f", ReasonML, p))
	}

	out := make(model.Candidates, 0, len(byCategory))
	for category, c := range byCategory {
		stat, ok := in.Feedback[category]
		if ok {
			c.AcceptCount = max(stat.AcceptCount, 0)
			c.RejectCount = max(stat.RejectCount, 0)
		}

		if c.FromRule {
			out = append(out, *c)
			continue
		}

		if seen := c.AcceptCount + c.RejectCount; seen > 0 {
			if c.RejectCount > c.AcceptCount {
				continue
			}
			net := float64(c.AcceptCount-c.RejectCount) / (float64(seen) + w.FeedbackPrior)
			c.Confidence += w.FeedbackWeight * net
			c.Reasons = append(c.Reasons, fmt.Sprintf("%s:+%d/-%d", ReasonFeedback, c.AcceptCount, c.RejectCount))
		}

		c.Confidence = clamp(c.Confidence, 0, w.HistoryCap)
		if c.Confidence < w.VisibilityFloor {
			continue
		}
		out = append(out, *c)
	}

	return out.TopN(w.MaxCandidates)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
