package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/config"
	"github.com/Veraticus/finrules/internal/engine"
	"github.com/Veraticus/finrules/internal/storage"
)

// app bundles what most commands need.
type app struct {
	cfg    *config.Config
	store  *storage.Store
	engine *engine.Engine
}

// loadConfig builds the typed configuration from viper.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("Invalid configuration: %v", err), err)
	}
	return cfg, nil
}

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(storage.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// openApp loads configuration, storage and the engine.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(store, engine.Config{
		Logger:  slog.Default(),
		Weights: cfg.Scoring,
		Mining:  cfg.Mining,
		FeedbackRetry: common.RetryOptions{
			MaxAttempts:  cfg.Feedback.RetryAttempts,
			InitialDelay: cfg.Feedback.RetryDelay,
			MaxDelay:     cfg.Feedback.RetryDelay * 20,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: store, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close storage", "error", err)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("%q is not a valid id", s), common.ErrInvalidInput)
	}
	return id, nil
}

// parseMonth parses YYYY-MM; the empty string means no month.
func parseMonth(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	m, err := time.Parse("2006-01", s)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("month %q must be YYYY-MM", s), common.ErrInvalidInput)
	}
	return &m, nil
}
