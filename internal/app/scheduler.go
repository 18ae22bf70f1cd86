/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron          *cron.Cron
	jobs          *Jobs
	logger        *slog.Logger
	sweepSchedule string
}

// NewScheduler creates a new scheduler instance. An empty or "off" schedule
// disables the subscription sweep.
func NewScheduler(jobs *Jobs, logger *slog.Logger, sweepSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:          c,
		jobs:          jobs,
		logger:        logger,
		sweepSchedule: strings.TrimSpace(sweepSchedule),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.sweepSchedule == "" || strings.EqualFold(s.sweepSchedule, "off") {
		s.logger.Info("subscription sweep disabled")
	} else if _, err := s.cron.AddFunc(s.sweepSchedule, s.jobs.SweepSubscriptions); err != nil {
		s.logger.Error("failed to schedule subscription sweep", "error", err)
		return err
	} else {
		s.logger.Info("scheduled subscription sweep", "schedule", s.sweepSchedule)
	}

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
