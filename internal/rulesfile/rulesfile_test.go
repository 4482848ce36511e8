package rulesfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

const sample = `rules:
  - name: coffee
    merchant: starbucks
    category: Coffee
  - merchant: "^shell|texaco"
    regex: true
    category: Fuel
    priority: 5
    amount_max: "0"
    enabled: false
`

func TestLoad(t *testing.T) {
	rules, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "coffee", rules[0].Name)
	assert.Equal(t, "starbucks", rules[0].When.MerchantLike)
	assert.Equal(t, "Coffee", rules[0].Then.Category)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, model.RuleSourceImport, rules[0].Source)
	assert.Nil(t, rules[0].When.AmountMin)

	assert.True(t, rules[1].When.IsRegex)
	assert.False(t, rules[1].Enabled)
	assert.Equal(t, 5, rules[1].Priority)
	require.NotNil(t, rules[1].When.AmountMax)
	assert.True(t, decimal.Zero.Equal(*rules[1].When.AmountMax))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown field", data: "rules:\n  - merchant: shell\n    categry: Fuel\n"},
		{name: "bad amount", data: "rules:\n  - merchant: shell\n    category: Fuel\n    amount_min: lots\n"},
		{name: "not yaml", data: "rules: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.data))
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	rules, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSaveThenLoad(t *testing.T) {
	lower := decimal.RequireFromString("-100.5")
	in := []model.Rule{
		{Name: "fuel", Enabled: true, Priority: 2, When: model.RuleWhen{MerchantLike: "shell", AmountMin: &lower}, Then: model.RuleThen{Category: "Fuel"}},
		{Name: "rent", Enabled: false, When: model.RuleWhen{DescriptionLike: "rent"}, Then: model.RuleThen{Category: "Housing"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, in))
	assert.Contains(t, buf.String(), "amount_min: \"-100.5\"")
	assert.Contains(t, buf.String(), "enabled: false")

	out, err := Load(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "shell", out[0].When.MerchantLike)
	require.NotNil(t, out[0].When.AmountMin)
	assert.True(t, lower.Equal(*out[0].When.AmountMin))
	assert.False(t, out[1].Enabled)
	assert.Equal(t, "rent", out[1].When.DescriptionLike)
}
