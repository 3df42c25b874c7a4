package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule fires the sweep at 20:00 every day.
const DefaultSchedule = "0 20 * * *"

var errMissingRunner = errors.New("reminders: sweep runner is required")

// Runner is satisfied by *Sweeper.
type Runner interface {
	Run(ctx context.Context) (SweepResult, error)
}

// SchedulerConfig configures the daily trigger.
type SchedulerConfig struct {
	Runner   Runner
	Schedule string
	Location *time.Location
	Logger   *zap.Logger
}

// Scheduler invokes the sweep on a standard five-field cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	logger   *zap.Logger
}

// NewScheduler validates the cron expression and registers the sweep job.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errMissingRunner
	}
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := cron.New(cron.WithLocation(location))
	runner := cfg.Runner
	if _, err := engine.AddFunc(schedule, func() {
		logger.Info("running daily reminder sweep")
		if _, err := runner.Run(context.Background()); err != nil {
			logger.Error("daily reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("reminders: invalid schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: engine, schedule: schedule, logger: logger}, nil
}

// Start begins firing the sweep in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reminder sweep scheduled", zap.String("schedule", s.schedule))
}

// Stop halts the trigger and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the sweep fires next; zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
