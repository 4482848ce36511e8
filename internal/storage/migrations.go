package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration. Statements use the
// {{id}}, {{time}}, {{money}}, {{bigint}} and {{float}} placeholders expanded per dialect.
type Migration struct {
	Description string
	Statements  []string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				date {{time}} NOT NULL,
				merchant TEXT NOT NULL DEFAULT '',
				merchant_canonical TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				amount {{money}} NOT NULL,
				category TEXT,
				created_at {{time}} NOT NULL,
				updated_at {{time}} NOT NULL,
				deleted_at {{time}}
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_merchant_canonical ON transactions(merchant_canonical, date)`,

			`CREATE TABLE IF NOT EXISTS rules (
				id {{id}},
				name TEXT NOT NULL,
				merchant_like TEXT NOT NULL DEFAULT '',
				description_like TEXT NOT NULL DEFAULT '',
				is_regex BOOLEAN NOT NULL DEFAULT FALSE,
				amount_min {{money}},
				amount_max {{money}},
				category TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				source TEXT NOT NULL DEFAULT 'manual',
				use_count INTEGER NOT NULL DEFAULT 0,
				created_at {{time}} NOT NULL,
				updated_at {{time}} NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rules_order ON rules(enabled, priority, id)`,
		},
	},
	{
		Version:     2,
		Description: "Add feedback counters and event log",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS ml_feedback_merchant_category_stats (
				merchant TEXT NOT NULL,
				category TEXT NOT NULL,
				accept_count INTEGER NOT NULL DEFAULT 0 CHECK (accept_count >= 0),
				reject_count INTEGER NOT NULL DEFAULT 0 CHECK (reject_count >= 0),
				last_feedback_at {{time}} NOT NULL,
				PRIMARY KEY (merchant, category)
			)`,
			`CREATE TABLE IF NOT EXISTS feedback_events (
				id {{id}},
				merchant TEXT NOT NULL,
				category TEXT NOT NULL,
				action TEXT NOT NULL,
				weight INTEGER NOT NULL,
				transaction_id TEXT NOT NULL DEFAULT '',
				rule_id {{bigint}},
				reverts_id {{bigint}},
				reverted BOOLEAN NOT NULL DEFAULT FALSE,
				created_at {{time}} NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feedback_events_pair ON feedback_events(merchant, category, id)`,
		},
	},
	{
		Version:     3,
		Description: "Add rule suggestions and ignore list",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS rule_suggestions (
				id {{id}},
				merchant TEXT NOT NULL,
				category TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'new',
				count INTEGER NOT NULL,
				total INTEGER NOT NULL,
				share {{float}} NOT NULL,
				rule_id {{bigint}},
				created_at {{time}} NOT NULL,
				resolved_at {{time}}
			)`,
			// At most one unresolved suggestion per pair.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_suggestions_pending
				ON rule_suggestions(merchant, category) WHERE status = 'new'`,
			`CREATE INDEX IF NOT EXISTS idx_rule_suggestions_status ON rule_suggestions(status)`,

			`CREATE TABLE IF NOT EXISTS suggestion_ignores (
				merchant TEXT NOT NULL,
				category TEXT NOT NULL,
				created_at {{time}} NOT NULL,
				PRIMARY KEY (merchant, category)
			)`,
		},
	},
	{
		Version:     4,
		Description: "Index soft-deleted transactions for purge",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_transactions_deleted_at ON transactions(deleted_at)`,
		},
	},
}

// Migrate applies all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.ddl(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at {{time}} NOT NULL
		)`)); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	currentVersion, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := s.applyMigration(ctx, tx, migration); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description,
			"driver", s.dialect.driver)
	}

	finalVersion, err := s.schemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.schemaVersion(ctx)
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.queryRow(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (s *Store) applyMigration(ctx context.Context, tx *sql.Tx, migration Migration) error {
	for _, stmt := range migration.Statements {
		if _, err := tx.ExecContext(ctx, s.dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", stmt, err)
		}
	}

	_, err := tx.ExecContext(ctx,
		s.dialect.rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`),
		migration.Version, migration.Description, s.now())
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
