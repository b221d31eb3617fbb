package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
)

// Scheduler drives the nightly pipeline: the symbol batch first, then the
// portfolio refresh gated on it. Cron expressions use seconds-resolution
// fields and fire in UTC so the schedule tracks the US close, not the host
// timezone.
type Scheduler struct {
	cron   *cron.Cron
	app    *App
	logger *common.Logger
}

// NewScheduler registers the cron entries from the schedule config.
func NewScheduler(a *App, logger *common.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	s := &Scheduler{cron: c, app: a, logger: logger}

	if _, err := c.AddFunc(a.Config.Schedule.SymbolBatchCron, s.runSymbolBatch); err != nil {
		return nil, fmt.Errorf("invalid symbol batch cron %q: %w", a.Config.Schedule.SymbolBatchCron, err)
	}
	if _, err := c.AddFunc(a.Config.Schedule.PortfolioRefreshCron, s.runPortfolioRefresh); err != nil {
		return nil, fmt.Errorf("invalid portfolio refresh cron %q: %w", a.Config.Schedule.PortfolioRefreshCron, err)
	}

	return s, nil
}

// Start begins cron dispatch in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("symbol_batch", s.app.Config.Schedule.SymbolBatchCron).
		Str("portfolio_refresh", s.app.Config.Schedule.PortfolioRefreshCron).
		Msg("Scheduler started")
}

// Stop halts dispatch and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// runSymbolBatch is the nightly symbol batch entry. Backfill is always on so
// a missed night heals itself on the next run.
func (s *Scheduler) runSymbolBatch() {
	ctx := context.Background()

	result, err := s.app.SymbolBatch.Run(ctx, interfaces.SymbolBatchOptions{Backfill: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled symbol batch failed")
		return
	}
	s.logger.Info().
		Int("dates", len(result.DatesProcessed)).
		Int("calculated", result.Calculated).
		Int("cached", result.Cached).
		Int("failed", result.Failed).
		Msg("Scheduled symbol batch complete")
}

// runPortfolioRefresh is the nightly refresh entry. It gates on the symbol
// batch so a slow fetch night delays rather than skews portfolio analytics.
func (s *Scheduler) runPortfolioRefresh() {
	ctx := context.Background()

	result, err := s.app.Refresh.Run(ctx, interfaces.RefreshOptions{WaitForSymbolBatch: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled portfolio refresh failed")
		return
	}
	s.logger.Info().
		Int("processed", result.PortfoliosProcessed).
		Int("failed", result.PortfoliosFailed).
		Msg("Scheduled portfolio refresh complete")
}
