package config

import (
	"errors"
	"testing"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("database.path", "/tmp/finrules-test.db")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/tmp/finrules-test.db", cfg.Database.Path)
	assert.Equal(t, 365, cfg.Mining.WindowDays)
	assert.Equal(t, 3, cfg.Mining.MinCount)
	assert.InDelta(t, 0.6, cfg.Mining.MinShare, 1e-9)
	assert.InDelta(t, 0.99, cfg.Scoring.RuleConfidence, 1e-9)
	assert.Equal(t, 3, cfg.Feedback.RetryAttempts)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		set  map[string]any
		name string
	}{
		{name: "unknown driver", set: map[string]any{"database.driver": "mysql"}},
		{name: "pgx without dsn", set: map[string]any{"database.driver": "pgx"}},
		{name: "history cap above rule confidence", set: map[string]any{"scoring.history_cap": 1.0}},
		{name: "min share out of range", set: map[string]any{"mining.min_share": 1.5}},
		{name: "no retry attempts", set: map[string]any{"feedback.retry_attempts": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			require.Error(t, err)
			assert.True(t,
				errors.Is(err, common.ErrInvalidConfig) || errors.Is(err, common.ErrMissingConfig),
				"unexpected error: %v", err)
		})
	}
}
