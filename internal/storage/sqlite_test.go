package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testTxn(id, merchantName, category string, daysAgo int) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        time.Now().UTC().AddDate(0, 0, -daysAgo).Truncate(time.Second),
		Merchant:    merchantName,
		Description: "card purchase",
		Amount:      decimal.RequireFromString("-12.50"),
		Category:    category,
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestDialect_Rebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b IN (?, ?)`
	assert.Equal(t, q, dialect{driver: DriverSQLite}.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`, dialect{driver: DriverPostgres}.rebind(q))
}

func TestDialect_DDL(t *testing.T) {
	stmt := `id {{id}}, at {{time}}, amount {{money}}, ref {{bigint}}, share {{float}}`
	assert.Equal(t,
		`id INTEGER PRIMARY KEY AUTOINCREMENT, at DATETIME, amount TEXT, ref INTEGER, share REAL`,
		dialect{driver: DriverSQLite}.ddl(stmt))
	assert.Equal(t,
		`id BIGSERIAL PRIMARY KEY, at TIMESTAMPTZ, amount NUMERIC(18,4), ref BIGINT, share DOUBLE PRECISION`,
		dialect{driver: DriverPostgres}.ddl(stmt))
}

func TestStore_Rules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	minAmount := decimal.NewFromInt(5)
	first := &model.Rule{
		Name:    "coffee",
		Enabled: true,
		When:    model.RuleWhen{MerchantLike: "starbucks", AmountMin: &minAmount},
		Then:    model.RuleThen{Category: "Dining"},
	}
	second := &model.Rule{
		Name:     "rent",
		Enabled:  false,
		Priority: 10,
		When:     model.RuleWhen{DescriptionLike: "rent"},
		Then:     model.RuleThen{Category: "Housing"},
	}
	require.NoError(t, store.CreateRule(ctx, first))
	require.NoError(t, store.CreateRule(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Equal(t, model.RuleSourceManual, first.Source)

	got, err := store.GetRule(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "starbucks", got.When.MerchantLike)
	require.NotNil(t, got.When.AmountMin)
	assert.True(t, got.When.AmountMin.Equal(minAmount))
	assert.Nil(t, got.When.AmountMax)

	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "higher priority first")

	enabled, err := store.GetEnabledRules(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, first.ID, enabled[0].ID)

	got.Then.Category = "Coffee"
	got.Enabled = false
	require.NoError(t, store.UpdateRule(ctx, got))
	got, err = store.GetRule(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Then.Category)
	assert.False(t, got.Enabled)

	require.NoError(t, store.IncrementRuleUseCount(ctx, first.ID, 3))
	got, err = store.GetRule(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UseCount)

	require.NoError(t, store.DeleteRule(ctx, first.ID))
	_, err = store.GetRule(ctx, first.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteRule(ctx, first.ID), common.ErrNotFound)
}

func TestStore_CreateRuleValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		rule *model.Rule
		name string
	}{
		{name: "nil rule", rule: nil},
		{name: "missing name", rule: &model.Rule{When: model.RuleWhen{MerchantLike: "a"}, Then: model.RuleThen{Category: "B"}}},
		{name: "missing predicate", rule: &model.Rule{Name: "x", Then: model.RuleThen{Category: "B"}}},
		{name: "unknown category", rule: &model.Rule{Name: "x", When: model.RuleWhen{MerchantLike: "a"}, Then: model.RuleThen{Category: "Unknown"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateRule(ctx, tt.rule)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule) || errors.Is(err, ErrNilParameter))
		})
	}
}

func TestStore_Feedback(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.IncrementFeedback(ctx, "starbucks 42", "Dining", 1, 0))
	require.NoError(t, store.IncrementFeedback(ctx, "starbucks 42", "Dining", 2, 3))
	require.NoError(t, store.IncrementFeedback(ctx, "starbucks 42", "Coffee", 0, 1))

	stat, err := store.GetFeedbackStat(ctx, "starbucks 42", "Dining")
	require.NoError(t, err)
	assert.Equal(t, 3, stat.AcceptCount)
	assert.Equal(t, 3, stat.RejectCount)
	assert.False(t, stat.LastFeedbackAt.IsZero())

	stats, err := store.GetFeedbackStats(ctx, "starbucks 42")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "Coffee", stats[0].Category)

	assert.ErrorIs(t, store.IncrementFeedback(ctx, "starbucks 42", "Dining", -1, 0), ErrInvalidFeedback)

	require.NoError(t, store.SetFeedbackCounts(ctx, "starbucks 42", "Dining", 0, 1))
	stat, err = store.GetFeedbackStat(ctx, "starbucks 42", "Dining")
	require.NoError(t, err)
	assert.Equal(t, 0, stat.AcceptCount)
	assert.Equal(t, 1, stat.RejectCount)

	require.NoError(t, store.DeleteFeedback(ctx, "starbucks 42", "Dining"))
	_, err = store.GetFeedbackStat(ctx, "starbucks 42", "Dining")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_LockFeedback(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.LockFeedback(ctx, "shell", "Fuel"), "missing row is not an error")
	_, err := store.GetFeedbackStat(ctx, "shell", "Fuel")
	assert.ErrorIs(t, err, common.ErrNotFound, "locking must not create a row")

	require.NoError(t, store.IncrementFeedback(ctx, "shell", "Fuel", 2, 1))
	require.NoError(t, WithTx(ctx, store, func(tx service.Transaction) error {
		return tx.LockFeedback(ctx, "shell", "Fuel")
	}))
	stat, err := store.GetFeedbackStat(ctx, "shell", "Fuel")
	require.NoError(t, err)
	assert.Equal(t, 2, stat.AcceptCount)
	assert.Equal(t, 1, stat.RejectCount)

	assert.ErrorIs(t, store.LockFeedback(ctx, "", "Fuel"), ErrEmptyString)
}

func TestStore_FeedbackEvents(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	ruleID := int64(7)
	events := []*model.FeedbackEvent{
		{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept, Weight: 1, TransactionID: "t1"},
		{Merchant: "shell", Category: "Fuel", Action: model.FeedbackReject, Weight: 3, RuleID: &ruleID},
		{Merchant: "shell", Category: "Fuel", Action: model.FeedbackAccept, Weight: 2, TransactionID: "t2"},
	}
	for _, e := range events {
		require.NoError(t, store.AppendFeedbackEvent(ctx, e))
		assert.NotZero(t, e.ID)
	}

	latest, err := store.GetLatestFeedbackEvent(ctx, "shell", "Fuel", "")
	require.NoError(t, err)
	assert.Equal(t, events[2].ID, latest.ID)

	scoped, err := store.GetLatestFeedbackEvent(ctx, "shell", "Fuel", "t1")
	require.NoError(t, err)
	assert.Equal(t, events[0].ID, scoped.ID)

	accept, reject, err := store.SumFeedbackEvents(ctx, "shell", "Fuel")
	require.NoError(t, err)
	assert.Equal(t, 3, accept)
	assert.Equal(t, 3, reject)

	require.NoError(t, store.MarkFeedbackEventReverted(ctx, events[2].ID))
	assert.ErrorIs(t, store.MarkFeedbackEventReverted(ctx, events[2].ID), common.ErrNotFound)

	accept, _, err = store.SumFeedbackEvents(ctx, "shell", "Fuel")
	require.NoError(t, err)
	assert.Equal(t, 1, accept)

	latest, err = store.GetLatestFeedbackEvent(ctx, "shell", "Fuel", "")
	require.NoError(t, err)
	assert.Equal(t, events[1].ID, latest.ID)
	require.NotNil(t, latest.RuleID)
	assert.Equal(t, ruleID, *latest.RuleID)

	all, err := store.GetFeedbackEvents(ctx, "shell", "Fuel")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].Reverted)

	err = store.AppendFeedbackEvent(ctx, &model.FeedbackEvent{Merchant: "shell", Category: "Fuel", Action: "boost", Weight: 1})
	assert.ErrorIs(t, err, ErrInvalidFeedback)
}

func TestStore_RuleSuggestions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	newSuggestion := func() *model.RuleSuggestion {
		return &model.RuleSuggestion{Merchant: "starbucks 42", Category: "Dining", Count: 8, Total: 10, Share: 0.8}
	}

	first := newSuggestion()
	inserted, err := store.InsertRuleSuggestion(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertRuleSuggestion(ctx, newSuggestion())
	require.NoError(t, err)
	assert.False(t, inserted, "second pending suggestion for the same pair is a no-op")

	pending, err := store.ListRuleSuggestions(ctx, model.SuggestionNew)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.InDelta(t, 0.8, pending[0].Share, 1e-9)

	ruleID := int64(42)
	require.NoError(t, store.ResolveRuleSuggestion(ctx, first.ID, model.SuggestionAccepted, &ruleID))
	err = store.ResolveRuleSuggestion(ctx, first.ID, model.SuggestionDismissed, nil)
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	got, err := store.GetRuleSuggestion(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionAccepted, got.Status)
	require.NotNil(t, got.RuleID)
	assert.Equal(t, ruleID, *got.RuleID)
	assert.NotNil(t, got.ResolvedAt)

	inserted, err = store.InsertRuleSuggestion(ctx, newSuggestion())
	require.NoError(t, err)
	assert.True(t, inserted, "resolved suggestions do not block the unique index")

	all, err := store.ListRuleSuggestions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, store.ResolveRuleSuggestion(ctx, 999, model.SuggestionDismissed, nil), common.ErrNotFound)
	assert.ErrorIs(t, store.ResolveRuleSuggestion(ctx, first.ID, model.SuggestionNew, nil), ErrInvalidSuggestion)
}

func TestStore_SuggestionIgnores(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.AddSuggestionIgnore(ctx, "starbucks 42", "Dining"))
	require.NoError(t, store.AddSuggestionIgnore(ctx, "starbucks 42", "Dining"))
	require.NoError(t, store.AddSuggestionIgnore(ctx, "amazon", "Shopping"))

	ignores, err := store.ListSuggestionIgnores(ctx)
	require.NoError(t, err)
	require.Len(t, ignores, 2)
	assert.Equal(t, "amazon", ignores[0].Merchant)

	require.NoError(t, store.RemoveSuggestionIgnore(ctx, "amazon", "Shopping"))
	assert.ErrorIs(t, store.RemoveSuggestionIgnore(ctx, "amazon", "Shopping"), common.ErrNotFound)
}

func TestWithTx(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := WithTx(ctx, store, func(tx service.Transaction) error {
		require.NoError(t, tx.AddSuggestionIgnore(ctx, "rolled back", "Dining"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = WithTx(ctx, store, func(tx service.Transaction) error {
		return tx.AddSuggestionIgnore(ctx, "committed", "Dining")
	})
	require.NoError(t, err)

	ignores, err := store.ListSuggestionIgnores(ctx)
	require.NoError(t, err)
	require.Len(t, ignores, 1)
	assert.Equal(t, "committed", ignores[0].Merchant)
}

func TestTransaction_Savepoints(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, tx.AddSuggestionIgnore(ctx, "kept", "Dining"))
	require.NoError(t, tx.Savepoint(ctx, "feedback"))
	require.NoError(t, tx.AddSuggestionIgnore(ctx, "discarded", "Dining"))
	require.NoError(t, tx.RollbackToSavepoint(ctx, "feedback"))
	require.NoError(t, tx.ReleaseSavepoint(ctx, "feedback"))
	require.NoError(t, tx.Commit())

	ignores, err := store.ListSuggestionIgnores(ctx)
	require.NoError(t, err)
	require.Len(t, ignores, 1)
	assert.Equal(t, "kept", ignores[0].Merchant)

	tx2, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx2.Rollback() }()
	assert.ErrorIs(t, tx2.Savepoint(ctx, "bad name; DROP TABLE rules"), ErrInvalidOptions)
	assert.Error(t, tx2.Migrate(ctx))
	_, err = tx2.BeginTx(ctx)
	assert.Error(t, err)
}
