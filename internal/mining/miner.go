// Package mining proposes new categorization rules from the category history
// of each canonical merchant.
package mining

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid mining options")

// Options are the mining thresholds.
type Options struct {
	WindowDays int     `json:"window_days"`
	MinCount   int     `json:"min_count"`
	MinShare   float64 `json:"min_share"`
}

// DefaultOptions returns the shipped thresholds.
func DefaultOptions() Options {
	return Options{WindowDays: 365, MinCount: 3, MinShare: 0.6}
}

// Validate reports out-of-range thresholds.
func (o Options) Validate() error {
	if o.WindowDays <= 0 {
		return fmt.Errorf("%w: window_days must be positive", ErrInvalidOptions)
	}
	if o.MinCount < 1 {
		return fmt.Errorf("%w: min_count must be at least 1", ErrInvalidOptions)
	}
	if o.MinShare <= 0 || o.MinShare > 1 {
		return fmt.Errorf("%w: min_share must be in (0, 1]", ErrInvalidOptions)
	}
	return nil
}

// Covering reports whether an enabled rule already categorizes a canonical
// merchant. *pattern.Matcher satisfies it.
type Covering interface {
	CoversMerchant(canonical string) bool
}

// Existing is the state a mining pass must not duplicate.
type Existing struct {
	Rules       Covering
	Ignored     []model.SuggestionIgnore
	Suggestions []model.RuleSuggestion // only new and accepted entries block a pair
}

// Pair identifies a (merchant, category) combination.
type Pair struct {
	Merchant string
	Category string
}

func pairKey(m, c string) Pair {
	return Pair{Merchant: m, Category: strings.ToLower(strings.TrimSpace(c))}
}

func (e Existing) blocked() map[Pair]struct{} {
	out := make(map[Pair]struct{}, len(e.Ignored)+len(e.Suggestions))
	for _, ig := range e.Ignored {
		out[pairKey(ig.Merchant, ig.Category)] = struct{}{}
	}
	for _, s := range e.Suggestions {
		if s.Status == model.SuggestionNew || s.Status == model.SuggestionAccepted {
			out[pairKey(s.Merchant, s.Category)] = struct{}{}
		}
	}
	return out
}

type merchantStats struct {
	counts map[string]int
	total  int
}

// Mine groups history rows by canonical merchant and emits one suggestion
// per merchant whose dominant category clears both thresholds and is not
// already covered, ignored, pending or accepted. The share denominator is
// the merchant's labeled transaction count. Output is sorted by merchant.
func Mine(history []model.MerchantCategoryCount, opts Options, existing Existing) ([]model.RuleSuggestion, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	byMerchant := make(map[string]*merchantStats)
	for _, row := range history {
		key := merchant.Key(row.Merchant)
		if key == "" || !model.IsLabel(row.Category) || row.Count <= 0 {
			continue
		}
		st, ok := byMerchant[key]
		if !ok {
			st = &merchantStats{counts: make(map[string]int)}
			byMerchant[key] = st
		}
		st.counts[strings.TrimSpace(row.Category)] += row.Count
		st.total += row.Count
	}

	blocked := existing.blocked()
	out := make([]model.RuleSuggestion, 0)
	for key, st := range byMerchant {
		category, count := dominant(st.counts)
		share := float64(count) / float64(st.total)
		if count < opts.MinCount || share < opts.MinShare {
			continue
		}
		if existing.Rules != nil && existing.Rules.CoversMerchant(key) {
			continue
		}
		if _, ok := blocked[pairKey(key, category)]; ok {
			continue
		}
		out = append(out, model.RuleSuggestion{
			Merchant: key,
			Category: category,
			Status:   model.SuggestionNew,
			Count:    count,
			Total:    st.total,
			Share:    share,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Merchant < out[j].Merchant })
	return out, nil
}

// dominant returns the category with the highest count, ties broken by
// label ascending.
func dominant(counts map[string]int) (string, int) {
	best, bestCount := "", 0
	for category, n := range counts {
		if n > bestCount || (n == bestCount && category < best) {
			best, bestCount = category, n
		}
	}
	return best, bestCount
}
