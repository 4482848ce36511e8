package scoring

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/jbrukh/bayesian"

	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
)

// ErrInsufficientClasses is returned when fewer than two categories are
// available for training.
var ErrInsufficientClasses = errors.New("naive bayes needs at least two categories")

// BayesModel is a naive-Bayes classifier over merchant and description
// tokens. A trained model is never mutated, so Probabilities is safe for
// concurrent use.
type BayesModel struct {
	classifier *bayesian.Classifier
	vocabulary map[string]struct{}
	classes    []bayesian.Class
	examples   int
}

// TrainBayes builds a model from labeled, non-deleted transactions.
func TrainBayes(txns []model.Transaction) (*BayesModel, error) {
	seen := make(map[string]struct{})
	for i := range txns {
		if txns[i].IsDeleted() || !txns[i].IsCategorized() {
			continue
		}
		seen[strings.TrimSpace(txns[i].Category)] = struct{}{}
	}
	if len(seen) < 2 {
		return nil, ErrInsufficientClasses
	}

	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	classes := make([]bayesian.Class, len(labels))
	for i, label := range labels {
		classes[i] = bayesian.Class(label)
	}

	m := &BayesModel{
		classifier: bayesian.NewClassifier(classes...),
		vocabulary: make(map[string]struct{}),
		classes:    classes,
	}
	for i := range txns {
		txn := txns[i]
		if txn.IsDeleted() || !txn.IsCategorized() {
			continue
		}
		terms := tokenize(txn)
		if len(terms) == 0 {
			continue
		}
		for _, term := range terms {
			m.vocabulary[term] = struct{}{}
		}
		m.classifier.Learn(terms, bayesian.Class(strings.TrimSpace(txn.Category)))
		m.examples++
	}
	return m, nil
}

// Examples returns the number of transactions the model learned from.
func (m *BayesModel) Examples() int {
	return m.examples
}

// Classes returns the categories the model can predict.
func (m *BayesModel) Classes() []string {
	out := make([]string, len(m.classes))
	for i, c := range m.classes {
		out[i] = string(c)
	}
	return out
}

// Probabilities returns per-category posteriors for txn. It returns nil
// when none of the transaction's tokens were seen during training, so the
// class priors alone never leak into scoring.
func (m *BayesModel) Probabilities(txn model.Transaction) map[string]float64 {
	if m == nil || m.examples == 0 {
		return nil
	}
	terms := tokenize(txn)
	known := terms[:0]
	for _, term := range terms {
		if _, ok := m.vocabulary[term]; ok {
			known = append(known, term)
		}
	}
	if len(known) == 0 {
		return nil
	}

	// Max-shifted softmax over log scores; raw products underflow to zero.
	scores, _, _ := m.classifier.LogScores(known)
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if math.IsInf(maxScore, 0) || math.IsNaN(maxScore) {
		return nil
	}

	exps := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		exps[i] = math.Exp(s - maxScore)
		sum += exps[i]
	}

	out := make(map[string]float64, len(scores))
	for i, e := range exps {
		p := e / sum
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		out[string(m.classes[i])] = p
	}
	return out
}

func tokenize(txn model.Transaction) []string {
	text := txn.MerchantCanonical
	if desc := merchant.Key(txn.Description); desc != "" {
		text += " " + desc
	}
	return strings.Fields(text)
}
