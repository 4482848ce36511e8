// Package scheduler re-mines rule suggestions and retrains the
// categorization model on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Veraticus/finrules/internal/engine"
	"github.com/Veraticus/finrules/internal/mining"
)

// DefaultSchedule runs the job nightly at 03:00.
const DefaultSchedule = "0 3 * * *"

// Jobs is the work the scheduler drives. *engine.Engine satisfies it.
type Jobs interface {
	MineSuggestions(ctx context.Context, opts mining.Options) (engine.MineResult, error)
	RetrainModel(ctx context.Context) (int, error)
}

// Config holds the schedule and the options passed to each run.
type Config struct {
	Schedule string
	TimeZone string
	Mining   mining.Options
	Timeout  time.Duration
}

// Scheduler wraps a cron runner with a single maintenance job.
type Scheduler struct {
	cron     *cron.Cron
	jobs     Jobs
	logger   *slog.Logger
	location *time.Location
	cfg      Config
}

// New registers the maintenance job. An unknown time zone falls back to UTC.
func New(cfg Config, jobs Jobs, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	if err := cfg.Mining.Validate(); err != nil {
		return nil, err
	}

	loc := time.UTC
	if cfg.TimeZone != "" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			logger.Warn("Invalid scheduler timezone, falling back to UTC", "timezone", cfg.TimeZone, "error", err)
		} else {
			loc = l
		}
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:     jobs,
		logger:   logger,
		location: loc,
		cfg:      cfg,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("unable to schedule mining job %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Mining scheduler started", "schedule", s.cfg.Schedule, "timezone", s.location.String())
}

// Stop prevents further runs and waits for a running job, or ctx, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled mining failed", "error", err)
	}
}

// RunOnce mines suggestions then retrains the model. A mining failure
// still lets retraining run.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	result, mineErr := s.jobs.MineSuggestions(ctx, s.cfg.Mining)
	if mineErr != nil {
		mineErr = fmt.Errorf("mining: %w", mineErr)
	}

	examples, trainErr := s.jobs.RetrainModel(ctx)
	if trainErr != nil {
		trainErr = fmt.Errorf("retraining: %w", trainErr)
	}

	if mineErr != nil {
		return mineErr
	}
	if trainErr != nil {
		return trainErr
	}

	s.logger.Info("Scheduled maintenance completed",
		"created_suggestions", len(result.Created),
		"training_examples", examples,
		"duration", time.Since(start))
	return nil
}
