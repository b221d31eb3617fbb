// Package symbolbatch implements the per-symbol nightly batch: price fetch
// into the cache, trailing return metrics, and factor regressions, processed
// one trading date at a time in strict chronological order.
package symbolbatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/services/factors"
	"github.com/finertia/riskcore/internal/storage"
)

// Phases recorded on per-symbol batch errors.
const (
	PhaseFetch   = "fetch"
	PhaseMetrics = "metrics"
	PhaseFactors = "factors"
)

// Service is the symbol batch processor.
type Service struct {
	store  interfaces.StorageManager
	client interfaces.MarketDataClient
	engine *factors.Engine
	logger *common.Logger
	cfg    common.BatchConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a symbol batch service.
func NewService(store interfaces.StorageManager, client interfaces.MarketDataClient, engine *factors.Engine, cfg common.BatchConfig, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:  store,
		client: client,
		engine: engine,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

var _ interfaces.SymbolBatchService = (*Service)(nil)

// Run processes the target date, plus any missed dates when backfilling.
// Dates always run oldest to newest so trailing windows never see a gap that
// a later date would have filled. Per-symbol failures are itemized in the
// result; only date-level storage failures stop the run early, and even then
// the partial result is returned.
func (s *Service) Run(ctx context.Context, opts interfaces.SymbolBatchOptions) (*models.SymbolBatchResult, error) {
	started := s.now()
	result := &models.SymbolBatchResult{}

	targetInput := opts.TargetDate
	if targetInput.IsZero() {
		targetInput = s.now().UTC()
	}
	target := common.MostRecentTradingDay(targetInput)

	dates, err := s.resolveDates(ctx, target, opts.Backfill)
	if err != nil {
		return result, err
	}

	universe, err := s.resolveUniverse(ctx, opts.Symbols)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("dates", len(dates)).
		Int("symbols", len(universe)).
		Bool("backfill", opts.Backfill).
		Bool("force", opts.Force).
		Msg("Symbol batch starting")

	for _, date := range dates {
		if err := s.processDate(ctx, date, universe, opts.Force, result); err != nil {
			result.DatesFailed = append(result.DatesFailed, date)
			s.recordRun(ctx, date, false)
			s.logger.Error().
				Str("date", date.Format("2006-01-02")).
				Err(err).
				Msg("Symbol batch date failed, halting to preserve ordering")
			break
		}
		result.DatesProcessed = append(result.DatesProcessed, date)
		s.recordRun(ctx, date, true)
	}

	result.Duration = s.now().Sub(started)
	s.logger.Info().
		Int("processed", len(result.DatesProcessed)).
		Int("calculated", result.Calculated).
		Int("cached", result.Cached).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Symbol batch finished")
	return result, nil
}

// resolveDates enumerates the dates to process, oldest first. Backfill walks
// forward from the last successful run, bounded by the backfill limit.
func (s *Service) resolveDates(ctx context.Context, target time.Time, backfill bool) ([]time.Time, error) {
	if !backfill {
		return []time.Time{target}, nil
	}

	floor := target.AddDate(0, 0, -s.cfg.BackfillLimitDays)

	last, err := s.store.BatchRunStore().LastSuccessfulDate(ctx, models.JobTypeSymbolBatch)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First run ever: nothing to backfill against.
		return []time.Time{target}, nil
	case err != nil:
		return nil, fmt.Errorf("last successful run: %w", err)
	}

	if last.Before(floor) {
		last = floor
	}
	dates := common.TradingDaysBetween(last, target)
	if len(dates) == 0 {
		// Already caught up; reprocess the target date alone.
		return []time.Time{target}, nil
	}
	return dates, nil
}

// resolveUniverse is the distinct active symbol set plus the factor proxy
// ETFs, which are always processed regardless of holdings.
func (s *Service) resolveUniverse(ctx context.Context, scoped []string) ([]string, error) {
	seen := make(map[string]bool)
	var universe []string
	add := func(symbol string) {
		if symbol != "" && !seen[symbol] {
			seen[symbol] = true
			universe = append(universe, symbol)
		}
	}

	for _, proxy := range models.FactorProxySymbols() {
		add(proxy)
	}

	if len(scoped) > 0 {
		for _, symbol := range scoped {
			add(symbol)
		}
		sort.Strings(universe)
		return universe, nil
	}

	portfolios, err := s.store.PortfolioStore().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	for _, p := range portfolios {
		for _, symbol := range p.ActiveSymbols() {
			add(symbol)
		}
	}
	sort.Strings(universe)
	return universe, nil
}

// processDate runs one date in two passes: prices for the whole universe
// first, metrics and regressions second. Regressions read the factor proxy
// series from the price cache, so no regression may start until every fetch
// for the date has finished. Per-symbol errors are recorded and do not fail
// the date.
func (s *Service) processDate(ctx context.Context, date time.Time, universe []string, force bool, result *models.SymbolBatchResult) error {
	var mu sync.Mutex
	done := make(map[string]bool, len(universe))

	fail := func(symbol, phase string, err error) {
		mu.Lock()
		defer mu.Unlock()
		done[symbol] = true
		result.Failed++
		result.Errors = append(result.Errors, models.BatchError{
			Unit:   symbol,
			Date:   date.Format("2006-01-02"),
			Phase:  phase,
			Reason: err.Error(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for _, symbol := range universe {
		g.Go(func() error {
			cached, err := s.isCached(gctx, symbol, date, force)
			if err != nil {
				fail(symbol, PhaseMetrics, err)
				return nil
			}
			if cached {
				mu.Lock()
				done[symbol] = true
				result.Cached++
				mu.Unlock()
				return nil
			}
			if err := s.ensurePrices(gctx, symbol, date, force); err != nil {
				fail(symbol, PhaseFetch, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var pending []string
	for _, symbol := range universe {
		if !done[symbol] {
			pending = append(pending, symbol)
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for _, symbol := range pending {
		g.Go(func() error {
			if err := s.computeMetrics(gctx, symbol, date); err != nil {
				fail(symbol, PhaseMetrics, err)
				return nil
			}
			if err := s.computeFactors(gctx, symbol, date, force); err != nil {
				fail(symbol, PhaseFactors, err)
				return nil
			}
			mu.Lock()
			result.Calculated++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// isCached reports whether the symbol already has a metrics row for the date.
// Cached symbols skip both passes; the cached/calculated split is what makes
// reruns observable.
func (s *Service) isCached(ctx context.Context, symbol string, date time.Time, force bool) (bool, error) {
	if force {
		return false, nil
	}
	exists, err := s.store.MetricsStore().Exists(ctx, symbol, date)
	if err != nil {
		return false, fmt.Errorf("metrics existence check: %w", err)
	}
	return exists, nil
}

// ensurePrices guarantees the cache holds the symbol's history through date,
// fetching from the provider chain only when the date's bar is missing.
func (s *Service) ensurePrices(ctx context.Context, symbol string, date time.Time, force bool) error {
	if !force {
		if _, err := s.store.PriceStore().GetBar(ctx, symbol, date); err == nil {
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("price cache check: %w", err)
		}
	}

	fetchDays := s.cfg.RegressionWindowDays + s.cfg.PriceLookbackDays
	bars, err := s.client.GetHistoricalPrices(ctx, symbol, fetchDays)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("provider returned no bars for %s", symbol)
	}
	if err := s.store.PriceStore().UpsertBars(ctx, bars); err != nil {
		return fmt.Errorf("upsert bars: %w", err)
	}
	return nil
}

// computeMetrics writes the per-symbol per-day close, trailing returns, and
// data quality score. Missing reference closes leave the corresponding
// return nil rather than zero.
func (s *Service) computeMetrics(ctx context.Context, symbol string, date time.Time) error {
	bar, err := s.store.PriceStore().GetBar(ctx, symbol, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no bar cached for %s", date.Format("2006-01-02"))
		}
		return err
	}

	m := &models.SymbolMetrics{
		Symbol:    symbol,
		Date:      date,
		Close:     bar.Close,
		CreatedAt: s.now().UTC(),
	}

	m.Return1D = s.returnSince(ctx, symbol, common.PrevTradingDay(date), bar.Close)
	m.ReturnMTD = s.returnSince(ctx, symbol, endOfPreviousMonth(date), bar.Close)
	m.ReturnYTD = s.returnSince(ctx, symbol, endOfPreviousYear(date), bar.Close)
	m.Return1M = s.returnSince(ctx, symbol, date.AddDate(0, -1, 0), bar.Close)
	m.Return3M = s.returnSince(ctx, symbol, date.AddDate(0, -3, 0), bar.Close)
	m.Return1Y = s.returnSince(ctx, symbol, date.AddDate(-1, 0, 0), bar.Close)

	quality, err := s.dataQualityScore(ctx, symbol, date)
	if err != nil {
		return err
	}
	m.DataQualityScore = quality

	if err := s.store.MetricsStore().Save(ctx, m); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// returnSince computes the simple return from the close at or before refDate
// to close. Nil when no reference close is available within the lookback.
func (s *Service) returnSince(ctx context.Context, symbol string, refDate time.Time, close float64) *float64 {
	ref, err := s.store.PriceStore().GetLatestBarBefore(ctx, symbol, refDate.AddDate(0, 0, 1), s.cfg.PriceLookbackDays)
	if err != nil || ref.Close == 0 {
		return nil
	}
	r := close/ref.Close - 1
	return &r
}

// dataQualityScore is the fraction of the last 30 weekdays with a cached bar.
func (s *Service) dataQualityScore(ctx context.Context, symbol string, date time.Time) (float64, error) {
	const windowDays = 30
	from := date.AddDate(0, 0, -windowDays)

	bars, err := s.store.PriceStore().GetSeries(ctx, symbol, from, date)
	if err != nil {
		return 0, fmt.Errorf("get series for quality score: %w", err)
	}

	expected := len(common.TradingDaysBetween(from, date))
	if expected == 0 {
		return 0, nil
	}
	score := float64(len(bars)) / float64(expected)
	if score > 1 {
		score = 1
	}
	return score, nil
}

// computeFactors runs the regressions and persists the exposure rows. An
// unavailable result (young listing) is a normal outcome and writes nothing.
func (s *Service) computeFactors(ctx context.Context, symbol string, date time.Time, force bool) error {
	if !force {
		has, err := s.store.FactorStore().HasSymbolExposure(ctx, symbol, date)
		if err != nil {
			return fmt.Errorf("factor existence check: %w", err)
		}
		if has {
			return nil
		}
	}

	result, err := s.engine.ComputeSymbolFactors(ctx, symbol, date)
	if err != nil {
		return fmt.Errorf("compute factors: %w", err)
	}
	if !result.Available {
		s.logger.Debug().
			Str("symbol", symbol).
			Str("reason", result.Reason).
			Msg("Factor regression unavailable")
		return nil
	}

	rows := factors.ExposureRows(result)
	if err := s.store.FactorStore().SaveExposures(ctx, rows); err != nil {
		return fmt.Errorf("save exposures: %w", err)
	}
	return nil
}

func (s *Service) recordRun(ctx context.Context, date time.Time, success bool) {
	run := &models.BatchRun{
		ID:          uuid.NewString(),
		JobType:     models.JobTypeSymbolBatch,
		Date:        date,
		Success:     success,
		CompletedAt: s.now().UTC(),
	}
	if err := s.store.BatchRunStore().Record(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record batch run")
	}
}

func endOfPreviousMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func endOfPreviousYear(date time.Time) time.Time {
	return time.Date(date.Year()-1, time.December, 31, 0, 0, 0, 0, time.UTC)
}
