package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	require.NoError(t, store.Migrate(ctx), "re-running migrations is a no-op")

	var applied int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestMigrate_CreatesTables(t *testing.T) {
	store := createTestStorage(t)

	for _, table := range []string{
		"transactions",
		"rules",
		"ml_feedback_merchant_category_stats",
		"feedback_events",
		"rule_suggestions",
		"suggestion_ignores",
	} {
		var n int
		err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}

	var indexCount int
	err := store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_rule_suggestions_pending'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestMigrate_Sequential(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Statements)
	}
	assert.Equal(t, len(migrations), ExpectedSchemaVersion)
}

func TestNewSQLiteStorage_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "finrules.db")
	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}
