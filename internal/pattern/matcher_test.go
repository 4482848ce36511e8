package pattern

import (
	"testing"
	"time"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txn(merchantName, description string, amount float64) model.Transaction {
	return model.Transaction{
		ID:                "t-" + merchantName,
		Date:              time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Merchant:          merchantName,
		MerchantCanonical: merchant.Key(merchantName),
		Description:       description,
		Amount:            decimal.NewFromFloat(amount),
	}
}

func rule(id int64, merchantLike, category string) model.Rule {
	return model.Rule{
		ID:      id,
		Name:    "rule " + category,
		Enabled: true,
		When:    model.RuleWhen{MerchantLike: merchantLike},
		Then:    model.RuleThen{Category: category},
	}
}

func TestMatcher_Match(t *testing.T) {
	decPtr := func(f float64) *decimal.Decimal { d := decimal.NewFromFloat(f); return &d }

	tests := []struct {
		name   string
		rules  []model.Rule
		txn    model.Transaction
		wantID int64
	}{
		{
			name:   "substring on canonical merchant",
			rules:  []model.Rule{rule(1, "Starbucks", "Dining")},
			txn:    txn("STARBUCKS #42", "card purchase", -5),
			wantID: 1,
		},
		{
			name:   "pattern is canonicalized too",
			rules:  []model.Rule{rule(1, "café  déjà", "Dining")},
			txn:    txn("CAFE DEJA VU", "", -12),
			wantID: 1,
		},
		{
			name: "description substring is case-insensitive",
			rules: []model.Rule{{
				ID: 1, Name: "rent", Enabled: true,
				When: model.RuleWhen{DescriptionLike: "monthly RENT"},
				Then: model.RuleThen{Category: "Housing"},
			}},
			txn:    txn("ACME PROPERTY", "Monthly rent payment", -1500),
			wantID: 1,
		},
		{
			name: "regex on merchant",
			rules: []model.Rule{{
				ID: 3, Name: "coffee", Enabled: true,
				When: model.RuleWhen{MerchantLike: `^(starbucks|peets)\b`, IsRegex: true},
				Then: model.RuleThen{Category: "Coffee"},
			}},
			txn:    txn("Peets Coffee", "", -4),
			wantID: 3,
		},
		{
			name:  "disabled rules are skipped",
			rules: []model.Rule{{ID: 1, Name: "x", When: model.RuleWhen{MerchantLike: "uber"}, Then: model.RuleThen{Category: "Travel"}}},
			txn:   txn("UBER TRIP", "", -20),
		},
		{
			name:  "empty merchant never matches a merchant predicate",
			rules: []model.Rule{rule(1, "uber", "Travel")},
			txn:   txn("   ", "uber trip", -20),
		},
		{
			name: "amount bounds use absolute value",
			rules: []model.Rule{{
				ID: 1, Name: "big amazon", Enabled: true,
				When: model.RuleWhen{MerchantLike: "amazon", AmountMin: decPtr(100)},
				Then: model.RuleThen{Category: "Electronics"},
			}, rule(2, "amazon", "Shopping")},
			txn:    txn("AMAZON.COM", "", -45),
			wantID: 2,
		},
		{
			name:   "lower id wins on equal priority",
			rules:  []model.Rule{rule(9, "uber", "Rideshare"), rule(4, "uber", "Travel")},
			txn:    txn("UBER *TRIP", "", -18),
			wantID: 4,
		},
		{
			name: "higher priority wins over lower id",
			rules: []model.Rule{rule(1, "uber", "Travel"), func() model.Rule {
				r := rule(2, "uber eats", "Dining")
				r.Priority = 10
				return r
			}()},
			txn:    txn("UBER EATS", "", -30),
			wantID: 2,
		},
		{
			name: "invalid regex never matches",
			rules: []model.Rule{{
				ID: 1, Name: "broken", Enabled: true,
				When: model.RuleWhen{MerchantLike: "([", IsRegex: true},
				Then: model.RuleThen{Category: "Broken"},
			}},
			txn: txn("([", "", -1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewMatcher(tt.rules).Match(tt.txn)
			if tt.wantID == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	rules := []model.Rule{rule(5, "shell", "Fuel"), rule(2, "shell", "Auto"), rule(7, "shell oil", "Gas")}
	reversed := []model.Rule{rules[2], rules[1], rules[0]}
	tx := txn("SHELL OIL 5748", "", -40)

	first := NewMatcher(rules).Match(tx)
	require.NotNil(t, first)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first.ID, NewMatcher(rules).Match(tx).ID)
		assert.Equal(t, first.ID, NewMatcher(reversed).Match(tx).ID)
	}
	assert.Equal(t, int64(2), first.ID)
}

func TestMatcher_CoversMerchant(t *testing.T) {
	m := NewMatcher([]model.Rule{
		rule(1, "starbucks", "Dining"),
		{ID: 2, Name: "desc only", Enabled: true, When: model.RuleWhen{DescriptionLike: "netflix"}, Then: model.RuleThen{Category: "Streaming"}},
	})

	assert.True(t, m.CoversMerchant("starbucks 42"))
	assert.False(t, m.CoversMerchant("netflix com"))
	assert.False(t, m.CoversMerchant(""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.Rule
		wantErr bool
	}{
		{name: "valid", rule: rule(1, "starbucks", "Dining")},
		{name: "missing name", rule: model.Rule{When: model.RuleWhen{MerchantLike: "x"}, Then: model.RuleThen{Category: "A"}}, wantErr: true},
		{name: "unknown category", rule: rule(1, "starbucks", "Unknown"), wantErr: true},
		{name: "no predicate", rule: rule(1, "", "Dining"), wantErr: true},
		{name: "punctuation only merchant", rule: rule(1, "***", "Dining"), wantErr: true},
		{
			name:    "bad regex",
			rule:    model.Rule{Name: "r", When: model.RuleWhen{MerchantLike: "(", IsRegex: true}, Then: model.RuleThen{Category: "A"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidRule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTest(t *testing.T) {
	deleted := time.Now()
	txns := []model.Transaction{
		txn("STARBUCKS #1", "", -5),
		txn("STARBUCKS #2", "", -6),
		txn("PEETS", "", -4),
		txn("STARBUCKS #3", "", -7),
	}
	txns[3].DeletedAt = &deleted

	draft := rule(0, "starbucks", "Dining")
	draft.Enabled = false

	result := Test(draft, txns, 1)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 3, result.Scanned)
	require.Len(t, result.Sample, 1)
	assert.Equal(t, "STARBUCKS #1", result.Sample[0].Merchant)
}
