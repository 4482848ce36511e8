package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

const ruleColumns = `id, name, merchant_like, description_like, is_regex, amount_min, amount_max,
	category, priority, enabled, source, use_count, created_at, updated_at`

// CreateRule inserts a rule and fills in its ID and timestamps.
func (s *Store) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.Source == "" {
		rule.Source = model.RuleSourceManual
	}

	now := s.now()
	err := s.queryRow(ctx, `
		INSERT INTO rules (
			name, merchant_like, description_like, is_regex, amount_min, amount_max,
			category, priority, enabled, source, use_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		strings.TrimSpace(rule.Name),
		strings.TrimSpace(rule.When.MerchantLike),
		strings.TrimSpace(rule.When.DescriptionLike),
		rule.When.IsRegex,
		nullDecimal(rule.When.AmountMin),
		nullDecimal(rule.When.AmountMax),
		strings.TrimSpace(rule.Then.Category),
		rule.Priority,
		rule.Enabled,
		string(rule.Source),
		rule.UseCount,
		now,
		now,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.queryRow(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule in evaluation order.
func (s *Store) ListRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY priority DESC, id ASC`)
}

// GetEnabledRules returns enabled rules in evaluation order.
func (s *Store) GetEnabledRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE enabled = ? ORDER BY priority DESC, id ASC`, true)
}

func (s *Store) listRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule overwrites the mutable fields of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	now := s.now()
	result, err := s.exec(ctx, `
		UPDATE rules SET
			name = ?, merchant_like = ?, description_like = ?, is_regex = ?,
			amount_min = ?, amount_max = ?, category = ?, priority = ?, enabled = ?,
			updated_at = ?
		WHERE id = ?
	`,
		strings.TrimSpace(rule.Name),
		strings.TrimSpace(rule.When.MerchantLike),
		strings.TrimSpace(rule.When.DescriptionLike),
		rule.When.IsRegex,
		nullDecimal(rule.When.AmountMin),
		nullDecimal(rule.When.AmountMax),
		strings.TrimSpace(rule.Then.Category),
		rule.Priority,
		rule.Enabled,
		now,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if err := expectAffected(result, fmt.Sprintf("rule %d", rule.ID)); err != nil {
		return err
	}
	rule.UpdatedAt = now
	return nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.exec(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("rule %d", id))
}

// IncrementRuleUseCount records that a rule categorized delta transactions.
func (s *Store) IncrementRuleUseCount(ctx context.Context, id int64, delta int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if delta <= 0 {
		return nil
	}

	result, err := s.exec(ctx, `UPDATE rules SET use_count = use_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to increment rule use count: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("rule %d", id))
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule      model.Rule
		source    string
		amountMin decimal.NullDecimal
		amountMax decimal.NullDecimal
	)
	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.When.MerchantLike, &rule.When.DescriptionLike, &rule.When.IsRegex,
		&amountMin, &amountMax, &rule.Then.Category, &rule.Priority, &rule.Enabled,
		&source, &rule.UseCount, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.Source = model.RuleSource(source)
	if amountMin.Valid {
		v := amountMin.Decimal
		rule.When.AmountMin = &v
	}
	if amountMax.Valid {
		v := amountMax.Decimal
		rule.When.AmountMax = &v
	}
	return &rule, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
