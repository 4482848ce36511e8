// Package storage provides the data persistence layer for finrules.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/finrules/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrInvalidFeedback    = errors.New("invalid feedback")
	ErrInvalidSuggestion  = errors.New("invalid rule suggestion")
	ErrInvalidOptions     = errors.New("invalid storage options")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if strings.TrimSpace(txn.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Merchant) == "" && strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing merchant and description", ErrInvalidTransaction)
	}
	return nil
}

// validateRule validates a rule before it is written.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.When.MerchantLike) == "" && strings.TrimSpace(rule.When.DescriptionLike) == "" {
		return fmt.Errorf("%w: merchant or description pattern required", ErrInvalidRule)
	}
	if !model.IsLabel(rule.Then.Category) {
		return fmt.Errorf("%w: category %q is not a label", ErrInvalidRule, rule.Then.Category)
	}
	if rule.When.AmountMin != nil && rule.When.AmountMax != nil && rule.When.AmountMin.GreaterThan(*rule.When.AmountMax) {
		return fmt.Errorf("%w: amount_min exceeds amount_max", ErrInvalidRule)
	}
	return nil
}

// validatePair validates a (merchant, category) key.
func validatePair(merchant, category string) error {
	if err := validateString(merchant, "merchant"); err != nil {
		return err
	}
	return validateString(category, "category")
}

// validateFeedbackEvent validates an event before it is appended to the log.
func validateFeedbackEvent(event *model.FeedbackEvent) error {
	if event == nil {
		return fmt.Errorf("%w: feedback event", ErrNilParameter)
	}
	if err := validatePair(event.Merchant, event.Category); err != nil {
		return err
	}
	if !event.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidFeedback, event.Action)
	}
	if event.Weight < 1 {
		return fmt.Errorf("%w: weight must be at least 1", ErrInvalidFeedback)
	}
	return nil
}

// validateSuggestion validates a mined suggestion before insert.
func validateSuggestion(s *model.RuleSuggestion) error {
	if s == nil {
		return fmt.Errorf("%w: suggestion", ErrNilParameter)
	}
	if err := validatePair(s.Merchant, s.Category); err != nil {
		return err
	}
	if s.Count < 1 || s.Total < s.Count {
		return fmt.Errorf("%w: count %d of %d", ErrInvalidSuggestion, s.Count, s.Total)
	}
	if s.Share <= 0 || s.Share > 1 {
		return fmt.Errorf("%w: share must be in (0, 1]", ErrInvalidSuggestion)
	}
	return nil
}
