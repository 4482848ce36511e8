// Package engine orchestrates merchant categorization: scoring suggestions
// for transactions, rule management with feedback, rule mining and the
// suggestion lifecycle.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/mining"
	"github.com/Veraticus/finrules/internal/scoring"
	"github.com/Veraticus/finrules/internal/service"
)

// Engine is safe for concurrent use. Reads go straight to storage; every
// mutation runs in its own storage transaction.
type Engine struct {
	storage  service.Storage
	scorer   *scoring.Scorer
	recorder *feedback.Recorder
	model    atomic.Pointer[scoring.BayesModel]
	now      func() time.Time
	logger   *slog.Logger
	mining   mining.Options
}

// Config holds configuration options for the engine.
type Config struct {
	Logger        *slog.Logger
	Weights       scoring.Weights
	Mining        mining.Options
	FeedbackRetry common.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Weights:       scoring.DefaultWeights(),
		Mining:        mining.DefaultOptions(),
		FeedbackRetry: common.RetryOptions{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
}

// New creates an engine over storage.
func New(storage service.Storage, cfg Config) (*Engine, error) {
	scorer, err := scoring.NewScorer(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}
	if err := cfg.Mining.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		storage:  storage,
		scorer:   scorer,
		recorder: feedback.NewRecorder(storage, cfg.FeedbackRetry, logger),
		mining:   cfg.Mining,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}, nil
}

// MiningOptions returns the configured default mining thresholds.
func (e *Engine) MiningOptions() mining.Options {
	return e.mining
}

func (e *Engine) historySince() time.Time {
	return e.now().AddDate(0, 0, -e.scorer.Weights().HistoryWindowDays)
}
