// Package rulesfile loads and saves rules as YAML documents.
//
// A rules file looks like:
//
//	rules:
//	  - name: coffee
//	    merchant: starbucks
//	    category: Coffee
//	  - merchant: "^shell|texaco"
//	    regex: true
//	    category: Fuel
//	    amount_max: "0"
package rulesfile

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

// Entry is one rule as written in a rules file.
type Entry struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Merchant    string `yaml:"merchant,omitempty"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category"`
	AmountMin   string `yaml:"amount_min,omitempty"`
	AmountMax   string `yaml:"amount_max,omitempty"`
	Priority    int    `yaml:"priority,omitempty"`
	Regex       bool   `yaml:"regex,omitempty"`
}

// Document is the top-level rules file.
type Document struct {
	Rules []Entry `yaml:"rules"`
}

// Load decodes a rules file into rules with source import. Entries are
// enabled unless they say otherwise; validation is left to the caller.
func Load(r io.Reader) ([]model.Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to parse rules file: %w", common.ErrInvalidInput, err)
	}

	rules := make([]model.Rule, 0, len(doc.Rules))
	for i, e := range doc.Rules {
		rule, err := e.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Save encodes rules as a rules file.
func Save(w io.Writer, rules []model.Rule) error {
	doc := Document{Rules: make([]Entry, 0, len(rules))}
	for _, r := range rules {
		doc.Rules = append(doc.Rules, entryFor(r))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return enc.Close()
}

func (e Entry) rule() (model.Rule, error) {
	rule := model.Rule{
		Name:     strings.TrimSpace(e.Name),
		Enabled:  e.Enabled == nil || *e.Enabled,
		Source:   model.RuleSourceImport,
		Priority: e.Priority,
		When: model.RuleWhen{
			MerchantLike:    strings.TrimSpace(e.Merchant),
			DescriptionLike: strings.TrimSpace(e.Description),
			IsRegex:         e.Regex,
		},
		Then: model.RuleThen{Category: strings.TrimSpace(e.Category)},
	}

	var err error
	if rule.When.AmountMin, err = parseAmount(e.AmountMin); err != nil {
		return rule, err
	}
	if rule.When.AmountMax, err = parseAmount(e.AmountMax); err != nil {
		return rule, err
	}
	return rule, nil
}

func entryFor(r model.Rule) Entry {
	e := Entry{
		Name:        r.Name,
		Merchant:    r.When.MerchantLike,
		Description: r.When.DescriptionLike,
		Regex:       r.When.IsRegex,
		Category:    r.Then.Category,
		Priority:    r.Priority,
	}
	if !r.Enabled {
		disabled := false
		e.Enabled = &disabled
	}
	if r.When.AmountMin != nil {
		e.AmountMin = r.When.AmountMin.String()
	}
	if r.When.AmountMax != nil {
		e.AmountMax = r.When.AmountMax.String()
	}
	return e
}

func parseAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", common.ErrInvalidInput, s)
	}
	return &d, nil
}
