package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/services/correlation"
	"github.com/finertia/riskcore/internal/services/factors"
	"github.com/finertia/riskcore/internal/services/pnl"
	"github.com/finertia/riskcore/internal/storage/memory"
)

var testBatchConfig = common.BatchConfig{
	FetchConcurrency:          4,
	PortfolioConcurrency:      2,
	RegressionWindowDays:      120,
	MinRegressionObservations: 5,
	CorrelationDurationDays:   120,
	MinCorrelationOverlap:     5,
	PriceLookbackDays:         7,
	BackfillLimitDays:         10,
	WaitTimeout:               "100ms",
	WaitPollInterval:          "10ms",
}

func newService(t *testing.T) (*Service, *memory.Manager) {
	t.Helper()
	mgr := memory.NewManager()
	pnlEngine := pnl.NewEngine(mgr.PriceStore(), mgr.SnapshotStore(), testBatchConfig, nil)
	corrEngine := correlation.NewEngine(mgr.PriceStore(), testBatchConfig, nil)
	factorEngine := factors.NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)
	return NewService(mgr, pnlEngine, corrEngine, factorEngine, testBatchConfig, nil), mgr
}

func seedSeries(t *testing.T, mgr *memory.Manager, symbol string, end time.Time, count int, scale float64) {
	t.Helper()

	days := make([]time.Time, 0, count)
	d := common.Day(end)
	for len(days) < count {
		days = append([]time.Time{d}, days...)
		d = common.PrevTradingDay(d)
	}

	pattern := []float64{0.010, -0.006, 0.004, -0.012, 0.008, 0.002, -0.003, 0.015}
	price := 100.0
	bars := make([]*models.PriceBar, 0, count)
	for i, day := range days {
		if i > 0 {
			price *= 1 + scale*pattern[i%len(pattern)]
		}
		bars = append(bars, &models.PriceBar{Symbol: symbol, Date: day, Close: price, DataSource: "test"})
	}
	require.NoError(t, mgr.PriceStore().UpsertBars(context.Background(), bars))
}

func seedSymbolExposure(t *testing.T, mgr *memory.Manager, symbol string, date time.Time, beta float64) {
	t.Helper()
	require.NoError(t, mgr.FactorStore().SaveExposures(context.Background(), []*models.FactorExposure{{
		SubjectType:  models.SubjectSymbol,
		Subject:      symbol,
		Factor:       models.FactorMarket,
		Date:         date,
		WindowDays:   testBatchConfig.RegressionWindowDays,
		Beta:         beta,
		Observations: 90,
		CreatedAt:    time.Now().UTC(),
	}}))
}

func TestRunFullPipeline(t *testing.T) {
	ctx := context.Background()
	svc, mgr := newService(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	seedSeries(t, mgr, "AAA", date, 41, 1.0)
	seedSeries(t, mgr, "BBB", date, 41, 1.4)
	seedSymbolExposure(t, mgr, "AAA", date, 1.0)
	seedSymbolExposure(t, mgr, "BBB", date, 2.0)

	p := &models.Portfolio{
		ID:         "p1",
		Name:       "long-short",
		SeedEquity: decimal.NewFromInt(100000),
		Positions: []*models.Position{
			{ID: uuid.NewString(), PortfolioID: "p1", Symbol: "AAA", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(90)},
			{ID: uuid.NewString(), PortfolioID: "p1", Symbol: "BBB", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(-5), EntryPrice: decimal.NewFromInt(110)},
		},
	}
	require.NoError(t, mgr.PortfolioStore().Save(ctx, p))

	anchor := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.SnapshotStore().Save(ctx, &models.PortfolioSnapshot{
		PortfolioID:   "p1",
		Date:          anchor,
		EquityBalance: decimal.NewFromInt(101000),
		CumulativePnL: decimal.NewFromInt(1000),
	}))

	result, err := svc.Run(ctx, interfaces.RefreshOptions{TargetDate: date})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PortfoliosProcessed)
	assert.Zero(t, result.PortfoliosFailed)
	assert.Equal(t, 1, result.SnapshotsCreated)
	assert.Equal(t, 1, result.CorrelationsCalculated)
	assert.Equal(t, 1, result.FactorsAggregated)
	assert.Equal(t, 1, result.StressTestsCalculated)
	assert.Contains(t, result.PhaseDurations, models.PhaseSnapshot)

	// Snapshot anchored on the prior day, beta backfilled from aggregation.
	snapshot, err := mgr.SnapshotStore().Get(ctx, "p1", date)
	require.NoError(t, err)
	assert.Equal(t, anchor, snapshot.AnchorDate)
	assert.False(t, snapshot.AnchorDegraded)
	require.NotNil(t, snapshot.Beta)
	require.NotNil(t, snapshot.Volatility)
	assert.Greater(t, *snapshot.Volatility, 0.0)

	// Correlation matrix saved and available.
	calc, err := mgr.CorrelationStore().Get(ctx, "p1", date)
	require.NoError(t, err)
	assert.True(t, calc.Available)
	require.Len(t, calc.Pairs, 1)
	assert.Greater(t, calc.EffectivePositionCount, 1.0)

	// Portfolio exposures written under both weighting conventions.
	rows, err := mgr.FactorStore().GetSubjectExposures(ctx, models.SubjectPortfolio, "p1", date)
	require.NoError(t, err)
	schemes := map[string]bool{}
	for _, row := range rows {
		schemes[row.WeightingScheme] = true
	}
	assert.True(t, schemes[factors.WeightingAbsolute])
	assert.True(t, schemes[factors.WeightingSigned])

	// Stress scenarios applied against the aggregated dollar exposures.
	stress, err := mgr.StressStore().Get(ctx, "p1", date)
	require.NoError(t, err)
	assert.Len(t, stress, len(models.DefaultStressScenarios))

	// Repriced positions persisted.
	saved, err := mgr.PortfolioStore().Get(ctx, "p1")
	require.NoError(t, err)
	for _, pos := range saved.Positions {
		assert.False(t, pos.LastPrice.IsZero(), pos.Symbol)
	}

	// Refresh completion recorded for downstream consumers.
	ok, err := mgr.BatchRunStore().HasSuccessfulRun(ctx, models.JobTypePortfolioRefresh, date)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunWaitGateTimesOut(t *testing.T) {
	svc, _ := newService(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	_, err := svc.Run(context.Background(), interfaces.RefreshOptions{
		TargetDate:         date,
		WaitForSymbolBatch: true,
	})
	require.ErrorIs(t, err, ErrWaitTimeout)
}

func TestRunWaitGateOpensOnRecordedRun(t *testing.T) {
	ctx := context.Background()
	svc, mgr := newService(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	require.NoError(t, mgr.BatchRunStore().Record(ctx, &models.BatchRun{
		ID: uuid.NewString(), JobType: models.JobTypeSymbolBatch, Date: date, Success: true, CompletedAt: time.Now().UTC(),
	}))

	result, err := svc.Run(ctx, interfaces.RefreshOptions{
		TargetDate:         date,
		WaitForSymbolBatch: true,
	})
	require.NoError(t, err)
	assert.Zero(t, result.PortfoliosFailed)
}

func TestRunScopedPortfolios(t *testing.T) {
	ctx := context.Background()
	svc, mgr := newService(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"keep", "skip"} {
		require.NoError(t, mgr.PortfolioStore().Save(ctx, &models.Portfolio{
			ID: id, SeedEquity: decimal.NewFromInt(1000),
		}))
	}

	result, err := svc.Run(ctx, interfaces.RefreshOptions{
		TargetDate:   date,
		PortfolioIDs: []string{"keep"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PortfoliosProcessed)

	_, err = mgr.SnapshotStore().Get(ctx, "keep", date)
	assert.NoError(t, err)
	_, err = mgr.SnapshotStore().Get(ctx, "skip", date)
	assert.Error(t, err, "unscoped portfolio must not be refreshed")
}

func TestRunEmptyPortfolio(t *testing.T) {
	ctx := context.Background()
	svc, mgr := newService(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	require.NoError(t, mgr.PortfolioStore().Save(ctx, &models.Portfolio{
		ID: "empty", SeedEquity: decimal.NewFromInt(5000),
	}))

	result, err := svc.Run(ctx, interfaces.RefreshOptions{TargetDate: date})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PortfoliosProcessed)
	assert.Equal(t, 1, result.SnapshotsCreated)
	assert.Zero(t, result.FactorsAggregated)
	assert.Zero(t, result.StressTestsCalculated)

	snapshot, err := mgr.SnapshotStore().Get(ctx, "empty", date)
	require.NoError(t, err)
	// First snapshot ever: seed-anchored and flagged.
	assert.True(t, snapshot.AnchorDegraded)
	assert.True(t, snapshot.EquityBalance.Equal(decimal.NewFromInt(5000)))
}
