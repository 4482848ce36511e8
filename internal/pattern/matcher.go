// Package pattern evaluates transactions against user-defined categorization rules.
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
)

// Matcher returns the first enabled rule that matches a transaction.
// A Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	compiledMerchant    map[int64]*regexp.Regexp
	compiledDescription map[int64]*regexp.Regexp
	rules               []model.Rule
}

// NewMatcher creates a matcher over a copy of rules in evaluation order.
// Disabled rules and rules with invalid patterns are skipped.
func NewMatcher(rules []model.Rule) *Matcher {
	m := &Matcher{
		compiledMerchant:    make(map[int64]*regexp.Regexp),
		compiledDescription: make(map[int64]*regexp.Regexp),
	}

	ordered := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.When.IsRegex {
			ok := true
			if rule.When.MerchantLike != "" {
				re, err := compile(rule.When.MerchantLike)
				if err != nil {
					ok = false
				} else {
					m.compiledMerchant[rule.ID] = re
				}
			}
			if rule.When.DescriptionLike != "" {
				re, err := compile(rule.When.DescriptionLike)
				if err != nil {
					ok = false
				} else {
					m.compiledDescription[rule.ID] = re
				}
			}
			if !ok {
				continue
			}
		}
		ordered = append(ordered, rule)
	}

	SortRules(ordered)
	m.rules = ordered

	return m
}

// SortRules orders rules for first-match evaluation: priority descending,
// then ID ascending.
func SortRules(rules []model.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// Match returns the first matching rule, or nil.
func (m *Matcher) Match(txn model.Transaction) *model.Rule {
	for i := range m.rules {
		if m.matches(txn, m.rules[i]) {
			rule := m.rules[i]
			return &rule
		}
	}
	return nil
}

// CoversMerchant reports whether some enabled rule would match a transaction
// from the given canonical merchant regardless of description or amount.
func (m *Matcher) CoversMerchant(canonical string) bool {
	if canonical == "" {
		return false
	}
	for _, rule := range m.rules {
		if rule.When.MerchantLike == "" {
			continue
		}
		if m.matchesMerchant(canonical, canonical, rule) {
			return true
		}
	}
	return false
}

func (m *Matcher) matches(txn model.Transaction, rule model.Rule) bool {
	if rule.When.MerchantLike == "" && rule.When.DescriptionLike == "" {
		return false
	}

	if rule.When.MerchantLike != "" {
		canonical := txn.MerchantCanonical
		if canonical == "" {
			canonical = merchant.Key(txn.Merchant)
		}
		if canonical == "" {
			return false
		}
		if !m.matchesMerchant(canonical, txn.Merchant, rule) {
			return false
		}
	}

	if rule.When.DescriptionLike != "" && !m.matchesDescription(txn.Description, rule) {
		return false
	}

	return matchesAmount(txn, rule)
}

func (m *Matcher) matchesMerchant(canonical, raw string, rule model.Rule) bool {
	if rule.When.IsRegex {
		re, ok := m.compiledMerchant[rule.ID]
		if !ok {
			return false
		}
		return re.MatchString(canonical) || (raw != "" && re.MatchString(raw))
	}

	needle := merchant.Key(rule.When.MerchantLike)
	if needle == "" {
		return false
	}
	return strings.Contains(canonical, needle)
}

func (m *Matcher) matchesDescription(description string, rule model.Rule) bool {
	if description == "" {
		return false
	}
	if rule.When.IsRegex {
		re, ok := m.compiledDescription[rule.ID]
		return ok && re.MatchString(description)
	}
	return strings.Contains(strings.ToLower(description), strings.ToLower(strings.TrimSpace(rule.When.DescriptionLike)))
}

// matchesAmount compares the absolute amount against optional bounds.
func matchesAmount(txn model.Transaction, rule model.Rule) bool {
	amount := txn.Amount.Abs()
	if rule.When.AmountMin != nil && amount.LessThan(*rule.When.AmountMin) {
		return false
	}
	if rule.When.AmountMax != nil && amount.GreaterThan(*rule.When.AmountMax) {
		return false
	}
	return true
}

func compile(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// Validate reports whether a rule is well formed.
func Validate(rule model.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", common.ErrInvalidRule)
	}
	if !model.IsLabel(rule.Then.Category) {
		return fmt.Errorf("%w: category %q is not allowed", common.ErrInvalidRule, rule.Then.Category)
	}
	if strings.TrimSpace(rule.When.MerchantLike) == "" && strings.TrimSpace(rule.When.DescriptionLike) == "" {
		return fmt.Errorf("%w: a merchant or description pattern is required", common.ErrInvalidRule)
	}
	if !rule.When.IsRegex && rule.When.MerchantLike != "" && merchant.Key(rule.When.MerchantLike) == "" {
		return fmt.Errorf("%w: merchant pattern %q has no letters or digits", common.ErrInvalidRule, rule.When.MerchantLike)
	}
	if rule.When.IsRegex {
		for _, p := range []string{rule.When.MerchantLike, rule.When.DescriptionLike} {
			if p == "" {
				continue
			}
			if _, err := compile(p); err != nil {
				return fmt.Errorf("%w: invalid pattern %q: %w", common.ErrInvalidRule, p, err)
			}
		}
	}
	if rule.When.AmountMin != nil && rule.When.AmountMax != nil && rule.When.AmountMin.GreaterThan(*rule.When.AmountMax) {
		return fmt.Errorf("%w: amount_min is greater than amount_max", common.ErrInvalidRule)
	}
	return nil
}
