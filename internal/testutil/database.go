// Package testutil provides shared test helpers for storage-backed tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.Store
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedTransactions(testutil.Txn("t1", "STARBUCKS #42", "Dining", 3))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SeedTransactions saves txns or fails the test.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedRule creates rule or fails the test.
func (db *TestDB) SeedRule(rule model.Rule) model.Rule {
	db.t.Helper()
	if err := db.Storage.CreateRule(context.Background(), &rule); err != nil {
		db.t.Fatalf("failed to seed rule %q: %v", rule.Name, err)
	}
	return rule
}

// MustFeedback returns the counters for a pair, zero when none exist.
func (db *TestDB) MustFeedback(merchant, category string) model.FeedbackStat {
	db.t.Helper()
	stats, err := db.Storage.GetFeedbackStats(context.Background(), merchant)
	if err != nil {
		db.t.Fatalf("failed to load feedback for %s: %v", merchant, err)
	}
	for _, s := range stats {
		if s.Category == category {
			return s
		}
	}
	return model.FeedbackStat{Merchant: merchant, Category: category}
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// Txn builds a transaction dated daysAgo days in the past.
func Txn(id, merchant, category string, daysAgo int) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        time.Now().UTC().AddDate(0, 0, -daysAgo).Truncate(time.Second),
		Merchant:    merchant,
		Description: "card purchase",
		Amount:      decimal.RequireFromString("-9.99"),
		Category:    category,
	}
}

// MerchantRule builds an enabled merchant-substring rule.
func MerchantRule(name, merchantLike, category string) model.Rule {
	return model.Rule{
		Name:    name,
		Enabled: true,
		When:    model.RuleWhen{MerchantLike: merchantLike},
		Then:    model.RuleThen{Category: category},
	}
}
