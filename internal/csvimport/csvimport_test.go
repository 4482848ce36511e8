package csvimport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/common"
)

func TestRead(t *testing.T) {
	data := `date,merchant,description,amount,category,id
2024-03-01,STARBUCKS #42,card purchase,-4.50,Coffee,abc
03/02/2024,Shell Oil,,"-1,200.00",,
2024-03-03,Payroll,direct deposit,$2500,Unknown,pay-1
`
	txns, err := NewReader(Options{}).Read(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "abc", txns[0].ID)
	assert.Equal(t, "STARBUCKS #42", txns[0].Merchant)
	assert.Equal(t, "Coffee", txns[0].Category)
	assert.True(t, decimal.RequireFromString("-4.50").Equal(txns[0].Amount))
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(txns[0].Date))

	_, err = uuid.Parse(txns[1].ID)
	assert.NoError(t, err, "missing ids are generated")
	assert.True(t, decimal.RequireFromString("-1200").Equal(txns[1].Amount))
	assert.True(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).Equal(txns[1].Date))
	assert.Empty(t, txns[1].Category)

	assert.Empty(t, txns[2].Category, "Unknown is not a label")
	assert.True(t, decimal.RequireFromString("2500").Equal(txns[2].Amount))
}

func TestRead_HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "no date", data: "merchant,amount\nshell,1\n"},
		{name: "no amount", data: "date,merchant\n2024-01-01,shell\n"},
		{name: "no merchant or description", data: "date,amount\n2024-01-01,1\n"},
		{name: "duplicate", data: "date,date,merchant,amount\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(Options{}).Read(context.Background(), strings.NewReader(tt.data))
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestRead_RowErrors(t *testing.T) {
	data := "date,merchant,amount\nnot-a-date,shell,1\n2024-01-02,shell,abc\n2024-01-03,,5\n2024-01-04,texaco,-20\n"

	_, err := NewReader(Options{}).Read(context.Background(), strings.NewReader(data))
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")

	txns, err := NewReader(Options{SkipInvalid: true}).Read(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "texaco", txns[0].Merchant)
}

func TestRead_Delimiter(t *testing.T) {
	data := "Date;Description;Amount\n2024-01-05;ATM withdrawal;-40\n"

	txns, err := NewReader(Options{Comma: ';'}).Read(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "ATM withdrawal", txns[0].Description)
	assert.Empty(t, txns[0].Merchant)
}
