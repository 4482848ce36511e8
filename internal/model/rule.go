package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleSource indicates how a rule was created.
type RuleSource string

const (
	// RuleSourceManual marks rules created directly by the user.
	RuleSourceManual RuleSource = "manual"
	// RuleSourceSuggestion marks rules promoted from a mined suggestion.
	RuleSourceSuggestion RuleSource = "suggestion"
	// RuleSourceImport marks rules loaded from a rules file.
	RuleSourceImport RuleSource = "import"
)

// RuleWhen is the match predicate of a rule.
type RuleWhen struct {
	AmountMin       *decimal.Decimal `json:"amount_min,omitempty" yaml:"amount_min,omitempty"`
	AmountMax       *decimal.Decimal `json:"amount_max,omitempty" yaml:"amount_max,omitempty"`
	MerchantLike    string           `json:"merchant_like,omitempty" yaml:"merchant,omitempty"`
	DescriptionLike string           `json:"description_like,omitempty" yaml:"description,omitempty"`
	IsRegex         bool             `json:"is_regex,omitempty" yaml:"regex,omitempty"`
}

// RuleThen is the result applied when a rule matches.
type RuleThen struct {
	Category string `json:"category" yaml:"category"`
}

// Rule maps a match predicate to a category.
// Rules are evaluated by Priority descending, then ID ascending.
type Rule struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	When      RuleWhen   `json:"when"`
	Then      RuleThen   `json:"then"`
	Name      string     `json:"name"`
	Source    RuleSource `json:"source"`
	ID        int64      `json:"id"`
	Priority  int        `json:"priority"`
	UseCount  int        `json:"use_count"`
	Enabled   bool       `json:"enabled"`
}

// RulePatch describes a partial rule update. Nil fields are left unchanged.
type RulePatch struct {
	Name            *string
	MerchantLike    *string
	DescriptionLike *string
	IsRegex         *bool
	Category        *string
	Priority        *int
	Enabled         *bool
	AmountMin       *decimal.Decimal
	AmountMax       *decimal.Decimal
	ClearAmount     bool
}

// Apply returns a copy of r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.MerchantLike != nil {
		r.When.MerchantLike = *p.MerchantLike
	}
	if p.DescriptionLike != nil {
		r.When.DescriptionLike = *p.DescriptionLike
	}
	if p.IsRegex != nil {
		r.When.IsRegex = *p.IsRegex
	}
	if p.Category != nil {
		r.Then.Category = *p.Category
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.ClearAmount {
		r.When.AmountMin = nil
		r.When.AmountMax = nil
	}
	if p.AmountMin != nil {
		r.When.AmountMin = p.AmountMin
	}
	if p.AmountMax != nil {
		r.When.AmountMax = p.AmountMax
	}
	return r
}
