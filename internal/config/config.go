package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/mining"
	"github.com/Veraticus/finrules/internal/scoring"
	"github.com/spf13/viper"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "$HOME/.local/share/finrules/finrules.db"

// Config is the typed view of the viper configuration.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Mining    mining.Options
	Feedback  FeedbackConfig
	Scoring   scoring.Weights
}

// DatabaseConfig selects the storage dialect and its location.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
}

// SchedulerConfig configures periodic re-mining.
type SchedulerConfig struct {
	MiningSchedule string
	Timezone       string
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string
	Format string
}

// FeedbackConfig is the retry budget for stand-alone feedback writes.
type FeedbackConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	w := scoring.DefaultWeights()
	m := mining.DefaultOptions()

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("scoring.rule_confidence", w.RuleConfidence)
	v.SetDefault("scoring.history_weight", w.HistoryWeight)
	v.SetDefault("scoring.history_cap", w.HistoryCap)
	v.SetDefault("scoring.history_window_days", w.HistoryWindowDays)
	v.SetDefault("scoring.feedback_weight", w.FeedbackWeight)
	v.SetDefault("scoring.feedback_prior", w.FeedbackPrior)
	v.SetDefault("scoring.ml_weight", w.MLWeight)
	v.SetDefault("scoring.visibility_floor", w.VisibilityFloor)
	v.SetDefault("scoring.max_candidates", w.MaxCandidates)

	v.SetDefault("mining.window_days", m.WindowDays)
	v.SetDefault("mining.min_count", m.MinCount)
	v.SetDefault("mining.min_share", m.MinShare)

	v.SetDefault("feedback.retry_attempts", 3)
	v.SetDefault("feedback.retry_delay", 50*time.Millisecond)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})

	v.SetDefault("scheduler.mining_schedule", "0 3 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			Path:   ExpandPath(v.GetString("database.path")),
			DSN:    v.GetString("database.dsn"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Scoring: scoring.Weights{
			RuleConfidence:    v.GetFloat64("scoring.rule_confidence"),
			HistoryWeight:     v.GetFloat64("scoring.history_weight"),
			HistoryCap:        v.GetFloat64("scoring.history_cap"),
			HistoryWindowDays: v.GetInt("scoring.history_window_days"),
			FeedbackWeight:    v.GetFloat64("scoring.feedback_weight"),
			FeedbackPrior:     v.GetFloat64("scoring.feedback_prior"),
			MLWeight:          v.GetFloat64("scoring.ml_weight"),
			VisibilityFloor:   v.GetFloat64("scoring.visibility_floor"),
			MaxCandidates:     v.GetInt("scoring.max_candidates"),
		},
		Mining: mining.Options{
			WindowDays: v.GetInt("mining.window_days"),
			MinCount:   v.GetInt("mining.min_count"),
			MinShare:   v.GetFloat64("mining.min_share"),
		},
		Feedback: FeedbackConfig{
			RetryAttempts: v.GetInt("feedback.retry_attempts"),
			RetryDelay:    v.GetDuration("feedback.retry_delay"),
		},
		Server: ServerConfig{
			Address:        v.GetString("server.address"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Scheduler: SchedulerConfig{
			MiningSchedule: v.GetString("scheduler.mining_schedule"),
			Timezone:       v.GetString("scheduler.timezone"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the pgx driver", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported database.driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}

	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if err := c.Mining.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if c.Feedback.RetryAttempts < 1 {
		return fmt.Errorf("%w: feedback.retry_attempts must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
