// Package refresh implements the per-portfolio nightly refresh: snapshot,
// correlation matrix, factor aggregation, and stress tests, gated on the
// symbol batch having completed for the date.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/services/correlation"
	"github.com/finertia/riskcore/internal/services/factors"
	"github.com/finertia/riskcore/internal/services/pnl"
)

// ErrWaitTimeout is returned when an upstream phase does not complete within
// the configured wait window.
var ErrWaitTimeout = errors.New("timed out waiting for upstream batch phase")

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

// Service is the portfolio refresh processor.
type Service struct {
	store        interfaces.StorageManager
	pnlEngine    *pnl.Engine
	corrEngine   *correlation.Engine
	factorEngine *factors.Engine
	logger       *common.Logger
	cfg          common.BatchConfig

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a portfolio refresh service.
func NewService(store interfaces.StorageManager, pnlEngine *pnl.Engine, corrEngine *correlation.Engine, factorEngine *factors.Engine, cfg common.BatchConfig, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:        store,
		pnlEngine:    pnlEngine,
		corrEngine:   corrEngine,
		factorEngine: factorEngine,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

var _ interfaces.PortfolioRefreshService = (*Service)(nil)

// Run refreshes every portfolio (or the requested subset) for the target
// date. Portfolios are independent and refresh concurrently; one portfolio's
// failure is itemized and never blocks the rest.
func (s *Service) Run(ctx context.Context, opts interfaces.RefreshOptions) (*models.PortfolioRefreshResult, error) {
	started := s.now()

	targetInput := opts.TargetDate
	if targetInput.IsZero() {
		targetInput = s.now().UTC()
	}
	target := common.MostRecentTradingDay(targetInput)

	result := &models.PortfolioRefreshResult{
		Date:           target,
		PhaseDurations: make(map[models.RefreshPhase]time.Duration),
	}

	if opts.WaitForSymbolBatch {
		if err := s.waitForRun(ctx, models.JobTypeSymbolBatch, target); err != nil {
			return result, err
		}
	}
	if opts.WaitForOnboarding {
		if err := s.waitForRun(ctx, models.JobTypeOnboarding, target); err != nil {
			return result, err
		}
	}

	portfolios, err := s.resolvePortfolios(ctx, opts.PortfolioIDs)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Str("date", target.Format("2006-01-02")).
		Int("portfolios", len(portfolios)).
		Msg("Portfolio refresh starting")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PortfolioConcurrency)

	for _, p := range portfolios {
		g.Go(func() error {
			outcome := s.refreshPortfolio(gctx, p, target)

			mu.Lock()
			defer mu.Unlock()
			if outcome.err != nil {
				result.PortfoliosFailed++
				result.Errors = append(result.Errors, models.BatchError{
					Unit:   p.ID,
					Date:   target.Format("2006-01-02"),
					Phase:  string(outcome.failedPhase),
					Reason: outcome.err.Error(),
				})
			} else {
				result.PortfoliosProcessed++
			}
			if outcome.snapshotSaved {
				result.SnapshotsCreated++
			}
			if outcome.correlationSaved {
				result.CorrelationsCalculated++
			}
			if outcome.factorsSaved {
				result.FactorsAggregated++
			}
			if outcome.stressSaved {
				result.StressTestsCalculated++
			}
			for phase, d := range outcome.phaseDurations {
				result.PhaseDurations[phase] += d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if result.PortfoliosFailed == 0 || result.PortfoliosProcessed > 0 {
		s.recordRun(ctx, target, result.PortfoliosFailed == 0)
	}

	result.Duration = s.now().Sub(started)
	s.logger.Info().
		Int("processed", result.PortfoliosProcessed).
		Int("failed", result.PortfoliosFailed).
		Dur("duration", result.Duration).
		Msg("Portfolio refresh finished")
	return result, nil
}

// waitForRun polls the batch run table until the upstream job type has a
// successful run for the date. The poll-on-table design means a refresh
// started on another host still sees the gate open.
func (s *Service) waitForRun(ctx context.Context, jobType string, date time.Time) error {
	deadline := s.now().Add(s.cfg.GetWaitTimeout())
	ticker := time.NewTicker(s.cfg.GetWaitPollInterval())
	defer ticker.Stop()

	for {
		ok, err := s.store.BatchRunStore().HasSuccessfulRun(ctx, jobType, date)
		if err != nil {
			return fmt.Errorf("check %s run: %w", jobType, err)
		}
		if ok {
			return nil
		}
		if s.now().After(deadline) {
			return fmt.Errorf("%w: %s for %s", ErrWaitTimeout, jobType, date.Format("2006-01-02"))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) resolvePortfolios(ctx context.Context, ids []string) ([]*models.Portfolio, error) {
	if len(ids) == 0 {
		portfolios, err := s.store.PortfolioStore().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list portfolios: %w", err)
		}
		return portfolios, nil
	}

	portfolios := make([]*models.Portfolio, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.PortfolioStore().Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get portfolio %s: %w", id, err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, nil
}

type portfolioOutcome struct {
	snapshotSaved    bool
	correlationSaved bool
	factorsSaved     bool
	stressSaved      bool
	phaseDurations   map[models.RefreshPhase]time.Duration
	failedPhase      models.RefreshPhase
	err              error
}

// refreshPortfolio runs the four phases in order for one portfolio. The
// snapshot phase is load-bearing: its failure aborts the portfolio. Later
// phases record their failure but leave earlier phases' output in place.
func (s *Service) refreshPortfolio(ctx context.Context, p *models.Portfolio, date time.Time) portfolioOutcome {
	outcome := portfolioOutcome{phaseDurations: make(map[models.RefreshPhase]time.Duration)}

	timed := func(phase models.RefreshPhase, fn func() error) error {
		phaseStart := s.now()
		err := fn()
		outcome.phaseDurations[phase] = s.now().Sub(phaseStart)
		if err != nil {
			outcome.failedPhase = phase
			outcome.err = err
		}
		return err
	}

	var snapshot *models.PortfolioSnapshot
	if err := timed(models.PhaseSnapshot, func() error {
		var err error
		snapshot, err = s.snapshotPhase(ctx, p, date)
		return err
	}); err != nil {
		return outcome
	}
	outcome.snapshotSaved = true

	if err := timed(models.PhaseCorrelation, func() error {
		return s.correlationPhase(ctx, p, date)
	}); err != nil {
		return outcome
	}
	outcome.correlationSaved = true

	var exposures []*models.FactorExposure
	if err := timed(models.PhaseFactorAggregation, func() error {
		var err error
		exposures, err = s.factorPhase(ctx, p, snapshot, date)
		return err
	}); err != nil {
		return outcome
	}
	outcome.factorsSaved = len(exposures) > 0

	if err := timed(models.PhaseStressTest, func() error {
		return s.stressPhase(ctx, p, snapshot, exposures, date)
	}); err != nil {
		return outcome
	}
	outcome.stressSaved = len(exposures) > 0

	return outcome
}

// snapshotPhase computes the day's P&L and equity rollforward, persists the
// snapshot, and saves the repriced positions back to the portfolio.
func (s *Service) snapshotPhase(ctx context.Context, p *models.Portfolio, date time.Time) (*models.PortfolioSnapshot, error) {
	snapshot, _, err := s.pnlEngine.ComputePortfolioSnapshot(ctx, p, date)
	if err != nil {
		return nil, err
	}

	if vol := s.portfolioVolatility(ctx, p, date); vol != nil {
		snapshot.Volatility = vol
	}

	if err := s.store.SnapshotStore().Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.store.PortfolioStore().Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save repriced portfolio: %w", err)
	}
	return snapshot, nil
}

func (s *Service) correlationPhase(ctx context.Context, p *models.Portfolio, date time.Time) error {
	calc, err := s.corrEngine.ComputePortfolioCorrelations(ctx, p, date)
	if err != nil {
		return err
	}
	if err := s.store.CorrelationStore().Save(ctx, calc); err != nil {
		return fmt.Errorf("save correlations: %w", err)
	}
	return nil
}

// factorPhase aggregates symbol betas to portfolio level and backfills the
// snapshot's headline beta from the signed market row.
func (s *Service) factorPhase(ctx context.Context, p *models.Portfolio, snapshot *models.PortfolioSnapshot, date time.Time) ([]*models.FactorExposure, error) {
	exposures, err := s.factorEngine.AggregatePortfolio(ctx, p, date)
	if err != nil {
		return nil, err
	}
	if len(exposures) == 0 {
		return nil, nil
	}

	if err := s.store.FactorStore().SaveExposures(ctx, exposures); err != nil {
		return nil, fmt.Errorf("save portfolio exposures: %w", err)
	}

	for _, row := range exposures {
		if row.Factor == models.FactorMarket && row.WeightingScheme == factors.WeightingSigned {
			beta := row.Beta
			snapshot.Beta = &beta
			if err := s.store.SnapshotStore().Save(ctx, snapshot); err != nil {
				return nil, fmt.Errorf("update snapshot beta: %w", err)
			}
			break
		}
	}
	return exposures, nil
}

// stressPhase applies the scenario library to the aggregated dollar
// exposures. No exposures means no stress results, not an error.
func (s *Service) stressPhase(ctx context.Context, p *models.Portfolio, snapshot *models.PortfolioSnapshot, exposures []*models.FactorExposure, date time.Time) error {
	if len(exposures) == 0 {
		return nil
	}

	// Dollar exposures are identical across weighting schemes; dedupe by
	// factor.
	dollarByFactor := make(map[models.Factor]float64)
	for _, row := range exposures {
		dollarByFactor[row.Factor] = row.DollarExposure
	}

	totalValue, _ := snapshot.TotalValue.Abs().Float64()

	now := s.now().UTC()
	results := make([]*models.StressTestResult, 0, len(models.DefaultStressScenarios))
	for _, scenario := range models.DefaultStressScenarios {
		var impact float64
		for factor, shock := range scenario.Shocks {
			impact += shock * dollarByFactor[factor]
		}

		r := &models.StressTestResult{
			PortfolioID:  p.ID,
			Date:         date,
			Scenario:     scenario.Name,
			EstimatedPnL: impact,
			CreatedAt:    now,
		}
		if totalValue > 0 {
			r.EstimatedPnLPct = impact / totalValue
		}
		results = append(results, r)
	}

	if err := s.store.StressStore().SaveResults(ctx, results); err != nil {
		return fmt.Errorf("save stress results: %w", err)
	}
	return nil
}

// portfolioVolatility is the annualized standard deviation of the
// value-weighted daily log return series over the correlation window. Nil
// when the book cannot produce enough overlapping history.
func (s *Service) portfolioVolatility(ctx context.Context, p *models.Portfolio, date time.Time) *float64 {
	date = common.Day(date)
	from := date.AddDate(0, 0, -s.cfg.CorrelationDurationDays)

	type holding struct {
		weight  float64
		returns map[time.Time]float64
	}

	var holdings []holding
	var gross float64
	for _, pos := range p.Positions {
		if pos.Private || pos.Quantity.IsZero() {
			continue
		}
		bars, err := s.store.PriceStore().GetSeries(ctx, pos.Symbol, from, date)
		if err != nil || len(bars) < 2 {
			continue
		}

		returns := make(map[time.Time]float64, len(bars))
		for i := 1; i < len(bars); i++ {
			if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
				continue
			}
			returns[common.Day(bars[i].Date)] = math.Log(bars[i].Close / bars[i-1].Close)
		}

		mult, _ := pos.Kind.Multiplier().Float64()
		qty, _ := pos.Quantity.Float64()
		mv := qty * bars[len(bars)-1].Close * mult
		holdings = append(holdings, holding{weight: mv, returns: returns})
		gross += math.Abs(mv)
	}
	if len(holdings) == 0 || gross == 0 {
		return nil
	}

	// Intersect the holdings' return dates.
	var shared []time.Time
	for d := range holdings[0].returns {
		inAll := true
		for _, h := range holdings[1:] {
			if _, ok := h.returns[d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, d)
		}
	}
	if len(shared) < s.cfg.MinCorrelationOverlap {
		return nil
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Before(shared[j]) })

	series := make([]float64, 0, len(shared))
	for _, d := range shared {
		var r float64
		for _, h := range holdings {
			r += (h.weight / gross) * h.returns[d]
		}
		series = append(series, r)
	}

	vol := stat.StdDev(series, nil) * math.Sqrt(tradingDaysPerYear)
	return &vol
}

func (s *Service) recordRun(ctx context.Context, date time.Time, success bool) {
	run := &models.BatchRun{
		ID:          uuid.NewString(),
		JobType:     models.JobTypePortfolioRefresh,
		Date:        date,
		Success:     success,
		CompletedAt: s.now().UTC(),
	}
	if err := s.store.BatchRunStore().Record(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record batch run")
	}
}
