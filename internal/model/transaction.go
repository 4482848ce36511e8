// Package model defines the core data structures for the categorization engine.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownCategory is the placeholder label that is never suggested.
const UnknownCategory = "Unknown"

// Transaction represents a single financial transaction owned by the user.
type Transaction struct {
	Date              time.Time       `json:"date"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	Amount            decimal.Decimal `json:"amount"` // signed; negative is spend
	ID                string          `json:"id"`
	Merchant          string          `json:"merchant"`    // raw merchant text
	Description       string          `json:"description"` // raw description
	MerchantCanonical string          `json:"merchant_canonical"`
	Category          string          `json:"category,omitempty"` // empty when uncategorized
}

// IsCategorized reports whether the transaction carries a usable label.
func (t *Transaction) IsCategorized() bool {
	return IsLabel(t.Category)
}

// IsDeleted reports whether the transaction has been soft-deleted.
func (t *Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsLabel reports whether category is a real category label.
// Empty strings and "Unknown" in any case are not labels.
func IsLabel(category string) bool {
	c := strings.TrimSpace(category)
	return c != "" && !strings.EqualFold(c, UnknownCategory)
}

// MerchantCategoryCount is one aggregated (merchant, category) history row.
type MerchantCategoryCount struct {
	Merchant string
	Category string
	Count    int
}
