package feedback

import (
	"strings"

	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
)

// rulePair returns the (merchant, category) pair a rule's feedback is keyed
// by. Rules without a plain merchant pattern have no pair.
func rulePair(rule *model.Rule) (string, string, bool) {
	if rule == nil || rule.When.IsRegex {
		return "", "", false
	}
	key := merchant.Key(rule.When.MerchantLike)
	category := strings.TrimSpace(rule.Then.Category)
	if key == "" || !model.IsLabel(category) {
		return "", "", false
	}
	return key, category, true
}

func ruleEvent(rule *model.Rule, action model.FeedbackAction, weight int) (Event, bool) {
	m, c, ok := rulePair(rule)
	if !ok {
		return Event{}, false
	}
	id := rule.ID
	return Event{Merchant: m, Category: c, Action: action, Weight: weight, RuleID: &id}, true
}

// RuleUpdateSignals derives the feedback for a rule edit: a category change
// rejects the old pair and accepts the new one with weight 2, disabling
// rejects with weight 1 and enabling accepts with weight 1.
func RuleUpdateSignals(before, after *model.Rule) []Event {
	var events []Event
	add := func(rule *model.Rule, action model.FeedbackAction, weight int) {
		if e, ok := ruleEvent(rule, action, weight); ok {
			events = append(events, e)
		}
	}

	if strings.TrimSpace(before.Then.Category) != strings.TrimSpace(after.Then.Category) {
		add(before, model.FeedbackReject, WeightCategoryChange)
		add(after, model.FeedbackAccept, WeightCategoryChange)
	}
	switch {
	case before.Enabled && !after.Enabled:
		add(after, model.FeedbackReject, WeightToggle)
	case !before.Enabled && after.Enabled:
		add(after, model.FeedbackAccept, WeightToggle)
	}
	return events
}

// RuleDeleteSignals derives the strong negative signal for a deleted rule.
func RuleDeleteSignals(rule *model.Rule) []Event {
	if e, ok := ruleEvent(rule, model.FeedbackReject, WeightDelete); ok {
		return []Event{e}
	}
	return nil
}

// SuggestionSignals derives feedback for accepting or dismissing a mined
// suggestion.
func SuggestionSignals(s *model.RuleSuggestion, accepted bool, ruleID *int64) []Event {
	action := model.FeedbackReject
	if accepted {
		action = model.FeedbackAccept
	}
	return []Event{{
		Merchant: s.Merchant,
		Category: s.Category,
		Action:   action,
		Weight:   WeightSuggestion,
		RuleID:   ruleID,
	}}
}

// CategorizeSignals derives feedback for a manual categorization: the new
// label is accepted and a different previous label is rejected.
func CategorizeSignals(txn *model.Transaction, category string) []Event {
	if txn.MerchantCanonical == "" {
		return nil
	}

	var events []Event
	previous := strings.TrimSpace(txn.Category)
	category = strings.TrimSpace(category)
	if model.IsLabel(previous) && !strings.EqualFold(previous, category) {
		events = append(events, Event{
			Merchant:      txn.MerchantCanonical,
			Category:      previous,
			Action:        model.FeedbackReject,
			Weight:        WeightManual,
			TransactionID: txn.ID,
		})
	}
	if model.IsLabel(category) && !strings.EqualFold(previous, category) {
		events = append(events, Event{
			Merchant:      txn.MerchantCanonical,
			Category:      category,
			Action:        model.FeedbackAccept,
			Weight:        WeightManual,
			TransactionID: txn.ID,
		})
	}
	return events
}
