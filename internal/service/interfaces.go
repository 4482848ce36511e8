// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/finrules/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate         *time.Time
	EndDate           *time.Time
	MerchantCanonical string
	Category          string
	Limit             int
	Offset            int
	OnlyCategorized   bool
	OnlyUncategorized bool
	IncludeDeleted    bool
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, id, category string) error
	DeleteTransaction(ctx context.Context, id string) error
	PurgeDeletedTransactions(ctx context.Context, before time.Time) (int64, error)
	GetMerchantHistory(ctx context.Context, merchantCanonical string, since time.Time, excludeID string) (map[string]int, error)
	GetMerchantCategoryCounts(ctx context.Context, since time.Time) ([]model.MerchantCategoryCount, error)

	// Rule operations
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	GetEnabledRules(ctx context.Context) ([]model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeleteRule(ctx context.Context, id int64) error
	IncrementRuleUseCount(ctx context.Context, id int64, delta int) error

	// Feedback operations
	IncrementFeedback(ctx context.Context, merchant, category string, acceptDelta, rejectDelta int) error
	SetFeedbackCounts(ctx context.Context, merchant, category string, acceptCount, rejectCount int) error
	LockFeedback(ctx context.Context, merchant, category string) error
	GetFeedbackStat(ctx context.Context, merchant, category string) (*model.FeedbackStat, error)
	GetFeedbackStats(ctx context.Context, merchant string) ([]model.FeedbackStat, error)
	DeleteFeedback(ctx context.Context, merchant, category string) error
	AppendFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	GetLatestFeedbackEvent(ctx context.Context, merchant, category, transactionID string) (*model.FeedbackEvent, error)
	MarkFeedbackEventReverted(ctx context.Context, id int64) error
	SumFeedbackEvents(ctx context.Context, merchant, category string) (acceptCount, rejectCount int, err error)
	GetFeedbackEvents(ctx context.Context, merchant, category string) ([]model.FeedbackEvent, error)

	// Rule suggestion operations
	InsertRuleSuggestion(ctx context.Context, suggestion *model.RuleSuggestion) (bool, error)
	GetRuleSuggestion(ctx context.Context, id int64) (*model.RuleSuggestion, error)
	ListRuleSuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.RuleSuggestion, error)
	ResolveRuleSuggestion(ctx context.Context, id int64, status model.SuggestionStatus, ruleID *int64) error

	// Suggestion ignore operations
	AddSuggestionIgnore(ctx context.Context, merchant, category string) error
	ListSuggestionIgnores(ctx context.Context) ([]model.SuggestionIgnore, error)
	RemoveSuggestionIgnore(ctx context.Context, merchant, category string) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Savepoints scope best-effort writes inside the transaction.
	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	// Include all Storage methods for use within transaction
	Storage
}
