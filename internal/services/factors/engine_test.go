package factors

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage/memory"
)

var testBatchConfig = common.BatchConfig{
	RegressionWindowDays:      120,
	MinRegressionObservations: 10,
	PriceLookbackDays:         7,
}

// seedSeries writes bars for consecutive weekdays ending at end, with closes
// compounding the given daily returns (oldest first). Returns n+1 bars.
func seedSeries(t *testing.T, store *memory.PriceStore, symbol string, end time.Time, returns []float64) {
	t.Helper()

	days := make([]time.Time, 0, len(returns)+1)
	d := common.Day(end)
	for len(days) < len(returns)+1 {
		days = append([]time.Time{d}, days...)
		d = common.PrevTradingDay(d)
	}

	close := 100.0
	bars := []*models.PriceBar{{Symbol: symbol, Date: days[0], Close: close, DataSource: "test"}}
	for i, r := range returns {
		close *= 1 + r
		bars = append(bars, &models.PriceBar{Symbol: symbol, Date: days[i+1], Close: close, DataSource: "test"})
	}
	require.NoError(t, store.UpsertBars(context.Background(), bars))
}

// marketReturns is a deterministic return pattern with real variance.
func marketReturns(n int) []float64 {
	pattern := []float64{0.010, -0.006, 0.004, -0.012, 0.008, 0.002, -0.003, 0.015}
	out := make([]float64, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func scale(returns []float64, k float64) []float64 {
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = k * r
	}
	return out
}

func TestComputeSymbolFactorsMarketBeta(t *testing.T) {
	mgr := memory.NewManager()
	prices := mgr.PriceStore().(*memory.PriceStore)
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC) // Friday
	rets := marketReturns(40)

	seedSeries(t, prices, "SPY", date, rets)
	// The symbol moves at exactly twice the market return.
	seedSeries(t, prices, "AAPL", date, scale(rets, 2))

	result, err := engine.ComputeSymbolFactors(context.Background(), "AAPL", date)
	require.NoError(t, err)
	require.True(t, result.Available, "reason: %s", result.Reason)

	assert.InDelta(t, 2.0, result.Betas[models.FactorMarket], 1e-9)
	assert.InDelta(t, 1.0, result.RSquared[models.FactorMarket], 1e-9)
	assert.Equal(t, 40, result.Observations[models.FactorMarket])

	// Proxies without seeded data must be absent, not zero-valued.
	_, hasValue := result.Betas[models.FactorValue]
	assert.False(t, hasValue)
}

func TestComputeSymbolFactorsSpread(t *testing.T) {
	mgr := memory.NewManager()
	prices := mgr.PriceStore().(*memory.PriceStore)
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	rets := marketReturns(40)

	seedSeries(t, prices, "VUG", date, scale(rets, 1.5))
	seedSeries(t, prices, "VTV", date, scale(rets, 0.5))
	// Spread return is exactly rets; the symbol moves at 3x the spread.
	seedSeries(t, prices, "GRW", date, scale(rets, 3))

	result, err := engine.ComputeSymbolFactors(context.Background(), "GRW", date)
	require.NoError(t, err)
	require.True(t, result.Available, "reason: %s", result.Reason)

	assert.InDelta(t, 3.0, result.Betas[models.FactorGrowthValueSpread], 1e-9)
	assert.Equal(t, 40, result.Observations[models.FactorGrowthValueSpread])
}

func TestComputeSymbolFactorsSkipsDegenerateSpread(t *testing.T) {
	mgr := memory.NewManager()
	prices := mgr.PriceStore().(*memory.PriceStore)
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	rets := marketReturns(40)

	// Legs in lockstep: the synthetic spread series is constantly zero, so
	// its regression has no defined slope and must not produce a NaN row.
	seedSeries(t, prices, "SPY", date, rets)
	seedSeries(t, prices, "VUG", date, rets)
	seedSeries(t, prices, "VTV", date, rets)
	seedSeries(t, prices, "AAPL", date, scale(rets, 2))

	result, err := engine.ComputeSymbolFactors(context.Background(), "AAPL", date)
	require.NoError(t, err)
	require.True(t, result.Available, "reason: %s", result.Reason)

	_, hasSpread := result.Betas[models.FactorGrowthValueSpread]
	assert.False(t, hasSpread, "zero-variance spread must be dropped")
	for factor, beta := range result.Betas {
		assert.False(t, math.IsNaN(beta), "NaN beta for %s", factor)
		assert.False(t, math.IsNaN(result.RSquared[factor]), "NaN r-squared for %s", factor)
	}
	assert.InDelta(t, 2.0, result.Betas[models.FactorMarket], 1e-9)
}

func TestComputeSymbolFactorsInsufficientHistory(t *testing.T) {
	mgr := memory.NewManager()
	prices := mgr.PriceStore().(*memory.PriceStore)
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	seedSeries(t, prices, "SPY", date, marketReturns(40))
	seedSeries(t, prices, "NEWIPO", date, marketReturns(5)) // below minimum

	result, err := engine.ComputeSymbolFactors(context.Background(), "NEWIPO", date)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, models.ReasonInsufficientHistory, result.Reason)
	assert.Nil(t, result.Betas)
}

func TestComputeSymbolFactorsNoPriceData(t *testing.T) {
	mgr := memory.NewManager()
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	result, err := engine.ComputeSymbolFactors(context.Background(), "GHOST", date)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, models.ReasonNoPriceData, result.Reason)
}

func TestExposureRows(t *testing.T) {
	result := &models.FactorResult{
		Symbol:      "AAPL",
		Date:        time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		WindowDays:  120,
		Available:   true,
		Betas:       map[models.Factor]float64{models.FactorMarket: 1.2},
		RSquared:    map[models.Factor]float64{models.FactorMarket: 0.8},
		Observations: map[models.Factor]int{models.FactorMarket: 90},
	}

	rows := ExposureRows(result)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SubjectSymbol, rows[0].SubjectType)
	assert.Equal(t, "AAPL", rows[0].Subject)
	assert.Equal(t, 1.2, rows[0].Beta)
	assert.Equal(t, 90, rows[0].Observations)
	assert.Empty(t, rows[0].WeightingScheme)

	assert.Nil(t, ExposureRows(&models.FactorResult{Available: false}))
}

func TestAggregatePortfolioBothWeightingSchemes(t *testing.T) {
	ctx := context.Background()
	mgr := memory.NewManager()
	prices := mgr.PriceStore().(*memory.PriceStore)
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	require.NoError(t, prices.UpsertBars(ctx, []*models.PriceBar{
		{Symbol: "AAPL", Date: date, Close: 100, DataSource: "test"},
		{Symbol: "TSLA", Date: date, Close: 200, DataSource: "test"},
	}))

	now := time.Now().UTC()
	require.NoError(t, mgr.FactorStore().SaveExposures(ctx, []*models.FactorExposure{
		{SubjectType: models.SubjectSymbol, Subject: "AAPL", Factor: models.FactorMarket, Date: date, WindowDays: 120, Beta: 1.0, Observations: 90, CreatedAt: now},
		{SubjectType: models.SubjectSymbol, Subject: "TSLA", Factor: models.FactorMarket, Date: date, WindowDays: 120, Beta: 2.0, Observations: 90, CreatedAt: now},
	}))

	// Long 10 AAPL @100 = +1000, short 5 TSLA @200 = -1000. Gross = 2000.
	p := &models.Portfolio{
		ID: "p1",
		Positions: []*models.Position{
			{Symbol: "AAPL", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(10)},
			{Symbol: "TSLA", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(-5)},
		},
	}

	rows, err := engine.AggregatePortfolio(ctx, p, date)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byScheme := map[string]*models.FactorExposure{}
	for _, row := range rows {
		require.Equal(t, models.SubjectPortfolio, row.SubjectType)
		require.Equal(t, models.FactorMarket, row.Factor)
		byScheme[row.WeightingScheme] = row
	}

	// Absolute: 0.5*1.0 + 0.5*2.0 = 1.5
	assert.InDelta(t, 1.5, byScheme[WeightingAbsolute].Beta, 1e-9)
	// Signed: 0.5*1.0 - 0.5*2.0 = -0.5
	assert.InDelta(t, -0.5, byScheme[WeightingSigned].Beta, 1e-9)
	// Dollar exposure is signed under both schemes: 1000*1 - 1000*2 = -1000.
	assert.InDelta(t, -1000, byScheme[WeightingAbsolute].DollarExposure, 1e-9)
	assert.InDelta(t, -1000, byScheme[WeightingSigned].DollarExposure, 1e-9)
}

func TestAggregatePortfolioSkipsPrivateAndUnknown(t *testing.T) {
	ctx := context.Background()
	mgr := memory.NewManager()
	engine := NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)

	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	p := &models.Portfolio{
		ID: "p1",
		Positions: []*models.Position{
			{Symbol: "PRIV", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(1), Private: true},
			{Symbol: "NODATA", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(1)},
		},
	}

	rows, err := engine.AggregatePortfolio(ctx, p, date)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
