package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/model"
)

func coffeeRule(enabled bool, category string) *model.Rule {
	return &model.Rule{
		ID:      4,
		Name:    "coffee",
		Enabled: enabled,
		When:    model.RuleWhen{MerchantLike: "STARBUCKS"},
		Then:    model.RuleThen{Category: category},
	}
}

func regexRule(enabled bool) *model.Rule {
	return &model.Rule{
		ID:      9,
		Name:    "coffee regex",
		Enabled: enabled,
		When:    model.RuleWhen{MerchantLike: "^star.*bucks$", IsRegex: true},
		Then:    model.RuleThen{Category: "Dining"},
	}
}

func TestRuleUpdateSignals(t *testing.T) {
	tests := []struct {
		before *model.Rule
		after  *model.Rule
		name   string
		want   []Event
	}{
		{
			name:   "disable",
			before: coffeeRule(true, "Dining"),
			after:  coffeeRule(false, "Dining"),
			want:   []Event{{Merchant: "starbucks", Category: "Dining", Action: model.FeedbackReject, Weight: 1}},
		},
		{
			name:   "enable",
			before: coffeeRule(false, "Dining"),
			after:  coffeeRule(true, "Dining"),
			want:   []Event{{Merchant: "starbucks", Category: "Dining", Action: model.FeedbackAccept, Weight: 1}},
		},
		{
			name:   "category change",
			before: coffeeRule(true, "Dining"),
			after:  coffeeRule(true, "Coffee"),
			want: []Event{
				{Merchant: "starbucks", Category: "Dining", Action: model.FeedbackReject, Weight: 2},
				{Merchant: "starbucks", Category: "Coffee", Action: model.FeedbackAccept, Weight: 2},
			},
		},
		{
			name:   "category change while disabling",
			before: coffeeRule(true, "Dining"),
			after:  coffeeRule(false, "Coffee"),
			want: []Event{
				{Merchant: "starbucks", Category: "Dining", Action: model.FeedbackReject, Weight: 2},
				{Merchant: "starbucks", Category: "Coffee", Action: model.FeedbackAccept, Weight: 2},
				{Merchant: "starbucks", Category: "Coffee", Action: model.FeedbackReject, Weight: 1},
			},
		},
		{
			name:   "regex rule disabled",
			before: regexRule(true),
			after:  regexRule(false),
			want:   nil,
		},
		{
			name:   "rename only",
			before: coffeeRule(true, "Dining"),
			after:  func() *model.Rule { r := coffeeRule(true, "Dining"); r.Name = "cafe"; return r }(),
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleUpdateSignals(tt.before, tt.after)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Merchant, got[i].Merchant)
				assert.Equal(t, tt.want[i].Category, got[i].Category)
				assert.Equal(t, tt.want[i].Action, got[i].Action)
				assert.Equal(t, tt.want[i].Weight, got[i].Weight)
				require.NotNil(t, got[i].RuleID)
				assert.Equal(t, int64(4), *got[i].RuleID)
			}
		})
	}
}

func TestRuleDeleteSignals(t *testing.T) {
	got := RuleDeleteSignals(coffeeRule(true, "Dining"))
	require.Len(t, got, 1)
	assert.Equal(t, model.FeedbackReject, got[0].Action)
	assert.Equal(t, WeightDelete, got[0].Weight)

	descriptionOnly := &model.Rule{ID: 1, When: model.RuleWhen{DescriptionLike: "rent"}, Then: model.RuleThen{Category: "Housing"}}
	assert.Empty(t, RuleDeleteSignals(descriptionOnly))
	assert.Empty(t, RuleDeleteSignals(regexRule(true)))
}

func TestCategorizeSignals(t *testing.T) {
	txn := &model.Transaction{ID: "t1", MerchantCanonical: "shell", Category: "Groceries"}

	got := CategorizeSignals(txn, "Fuel")
	require.Len(t, got, 2)
	assert.Equal(t, Event{Merchant: "shell", Category: "Groceries", Action: model.FeedbackReject, Weight: 1, TransactionID: "t1"}, got[0])
	assert.Equal(t, Event{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept, Weight: 1, TransactionID: "t1"}, got[1])

	assert.Empty(t, CategorizeSignals(txn, "groceries"), "same label is not feedback")

	txn.Category = ""
	got = CategorizeSignals(txn, "Fuel")
	require.Len(t, got, 1)
	assert.Equal(t, model.FeedbackAccept, got[0].Action)

	assert.Empty(t, CategorizeSignals(&model.Transaction{ID: "t2"}, "Fuel"))
}

func TestSuggestionSignals(t *testing.T) {
	s := &model.RuleSuggestion{Merchant: "starbucks 42", Category: "Dining"}
	id := int64(9)

	got := SuggestionSignals(s, true, &id)
	require.Len(t, got, 1)
	assert.Equal(t, model.FeedbackAccept, got[0].Action)
	assert.Equal(t, &id, got[0].RuleID)

	got = SuggestionSignals(s, false, nil)
	assert.Equal(t, model.FeedbackReject, got[0].Action)
}
