// Package sched runs the recurring full scrape on a cron schedule.
package sched

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

// Runner is the scrape trigger the scheduler drives.
type Runner interface {
	RunFullScrape(ctx context.Context) error
	Running() bool
}

// Scheduler fires the full scrape pass on a standard 5-field cron
// expression. A tick arriving while a pass is still running is skipped,
// never queued.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *zap.Logger
}

// New builds a stopped Scheduler for the given cron expression.
func New(expr string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(expr, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if s.runner.Running() {
		s.logger.Info("scheduled scrape skipped, previous pass still running")
		return
	}
	s.logger.Info("scheduled scrape starting")
	err := s.runner.RunFullScrape(context.Background())
	if err != nil && !errors.Is(err, scraper.ErrScrapeInProgress) {
		s.logger.Error("scheduled scrape failed", zap.Error(err))
	}
}

// Start begins firing ticks. It returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running job callback to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
