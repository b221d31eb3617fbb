package symbolbatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/services/factors"
	"github.com/finertia/riskcore/internal/storage/memory"
)

var testBatchConfig = common.BatchConfig{
	FetchConcurrency:          4,
	RegressionWindowDays:      60,
	MinRegressionObservations: 5,
	PriceLookbackDays:         7,
	BackfillLimitDays:         10,
}

// fakeClient serves deterministic bar series per symbol and counts calls.
type fakeClient struct {
	mu      sync.Mutex
	bars    map[string][]*models.PriceBar
	failing map[string]bool
	calls   map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		bars:    make(map[string][]*models.PriceBar),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeClient) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if f.failing[symbol] {
		return nil, fmt.Errorf("provider refused %s", symbol)
	}
	return f.bars[symbol], nil
}

func (f *fakeClient) ValidateAPIKey(ctx context.Context) error { return nil }

func (f *fakeClient) ProviderInfo() models.ProviderInfo {
	return models.ProviderInfo{Name: "fake", Priority: 1}
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

var baseReturnPattern = []float64{0.011, -0.007, 0.004, -0.009, 0.008, 0.002, -0.005, 0.013}

// seed generates count daily bars ending at end with slightly varying closes.
func (f *fakeClient) seed(symbol string, end time.Time, count int) {
	f.seedPattern(symbol, end, count, baseReturnPattern)
}

// seedPattern compounds the given daily return pattern into count closes
// ending at end.
func (f *fakeClient) seedPattern(symbol string, end time.Time, count int, pattern []float64) {
	days := make([]time.Time, 0, count)
	d := common.Day(end)
	for len(days) < count {
		days = append([]time.Time{d}, days...)
		d = common.PrevTradingDay(d)
	}

	price := 100.0
	bars := make([]*models.PriceBar, 0, count)
	for i, day := range days {
		if i > 0 {
			price *= 1 + pattern[i%len(pattern)]
		}
		bars = append(bars, &models.PriceBar{Symbol: symbol, Date: day, Close: price, DataSource: "fake"})
	}
	f.bars[symbol] = bars
}

func newService(t *testing.T, client *fakeClient) (*Service, *memory.Manager) {
	t.Helper()
	mgr := memory.NewManager()
	engine := factors.NewEngine(mgr.PriceStore(), mgr.FactorStore(), testBatchConfig, nil)
	return NewService(mgr, client, engine, testBatchConfig, nil), mgr
}

func seedUniverse(client *fakeClient, end time.Time, symbols ...string) {
	for _, proxy := range models.FactorProxySymbols() {
		client.seed(proxy, end, 20)
	}
	for _, symbol := range symbols {
		client.seed(symbol, end, 20)
	}
}

func batchOptions(target time.Time, backfill, force bool, symbols []string) interfaces.SymbolBatchOptions {
	return interfaces.SymbolBatchOptions{TargetDate: target, Backfill: backfill, Force: force, Symbols: symbols}
}

func savePortfolio(t *testing.T, mgr *memory.Manager, symbols ...string) {
	t.Helper()
	p := &models.Portfolio{ID: uuid.NewString(), Name: "test"}
	for _, symbol := range symbols {
		p.Positions = append(p.Positions, &models.Position{
			Symbol: symbol, Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(10),
		})
	}
	require.NoError(t, mgr.PortfolioStore().Save(context.Background(), p))
}

func TestRunSingleDate(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "AAPL", "TSLA")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL", "TSLA")

	result, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err)

	require.Equal(t, []time.Time{target}, result.DatesProcessed)
	proxies := len(models.FactorProxySymbols())
	assert.Equal(t, proxies+2, result.Calculated)
	assert.Zero(t, result.Cached)
	assert.Zero(t, result.Failed)

	// Metrics persisted with trailing returns.
	m, err := mgr.MetricsStore().Get(ctx, "AAPL", target)
	require.NoError(t, err)
	assert.NotNil(t, m.Return1D)
	assert.Greater(t, m.DataQualityScore, 0.0)

	// Factor exposures persisted for the symbol.
	has, err := mgr.FactorStore().HasSymbolExposure(ctx, "AAPL", target)
	require.NoError(t, err)
	assert.True(t, has)

	// Batch run recorded for the refresh wait gate.
	ok, err := mgr.BatchRunStore().HasSuccessfulRun(ctx, models.JobTypeSymbolBatch, target)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRegressionsSeeAllProxyPrices(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	// Serial fetching reaches AAPL before any proxy ETF. The regression pass
	// must still see every proxy series, spread legs included, so the full
	// factor set comes out on the first run. Each proxy gets a distinct
	// return pattern so no spread degenerates to zero variance.
	client := newFakeClient()
	for i, proxy := range models.FactorProxySymbols() {
		shift := i % len(baseReturnPattern)
		rotated := append(append([]float64(nil), baseReturnPattern[shift:]...), baseReturnPattern[:shift]...)
		client.seedPattern(proxy, target, 20, rotated)
	}
	client.seedPattern("AAPL", target, 20, baseReturnPattern)

	mgr := memory.NewManager()
	cfg := testBatchConfig
	cfg.FetchConcurrency = 1
	engine := factors.NewEngine(mgr.PriceStore(), mgr.FactorStore(), cfg, nil)
	svc := NewService(mgr, client, engine, cfg, nil)
	savePortfolio(t, mgr, "AAPL")

	result, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err)
	require.Zero(t, result.Failed)

	rows, err := mgr.FactorStore().GetSubjectExposures(ctx, models.SubjectSymbol, "AAPL", target)
	require.NoError(t, err)

	got := make(map[models.Factor]bool, len(rows))
	for _, row := range rows {
		got[row.Factor] = true
	}
	for _, p := range models.StandardFactorProxies {
		assert.True(t, got[p.Factor], "missing factor %s", p.Factor)
	}
	for _, p := range models.SpreadFactorProxies {
		assert.True(t, got[p.Factor], "missing factor %s", p.Factor)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "AAPL")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL")

	first, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err)
	require.Zero(t, first.Cached)
	callsAfterFirst := client.totalCalls()

	storedBefore, err := mgr.FactorStore().GetSubjectExposures(ctx, models.SubjectSymbol, "AAPL", target)
	require.NoError(t, err)
	require.NotEmpty(t, storedBefore)

	second, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err)
	assert.Equal(t, first.Calculated, second.Cached, "everything cached on rerun")
	assert.Zero(t, second.Calculated)
	assert.Equal(t, callsAfterFirst, client.totalCalls(), "cached rerun must not hit providers")

	storedAfter, err := mgr.FactorStore().GetSubjectExposures(ctx, models.SubjectSymbol, "AAPL", target)
	require.NoError(t, err)
	assert.Equal(t, storedBefore, storedAfter, "cached rerun leaves stored betas untouched")
}

func TestRunForceRecomputes(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "AAPL")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL")

	_, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err)

	forced, err := svc.Run(ctx, batchOptions(target, false, true, nil))
	require.NoError(t, err)
	assert.Zero(t, forced.Cached)
	assert.Greater(t, forced.Calculated, 0)
}

func TestRunBackfillProcessesMissedDatesInOrder(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC) // Friday

	client := newFakeClient()
	seedUniverse(client, target, "AAPL")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL")

	// Last successful run was Tuesday; Wed, Thu, Fri are missing.
	lastRun := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.BatchRunStore().Record(ctx, &models.BatchRun{
		ID: uuid.NewString(), JobType: models.JobTypeSymbolBatch, Date: lastRun, Success: true, CompletedAt: lastRun,
	}))

	result, err := svc.Run(ctx, batchOptions(target, true, false, nil))
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		target,
	}
	assert.Equal(t, want, result.DatesProcessed, "missed dates oldest first")
	assert.Empty(t, result.DatesFailed)

	for _, date := range want {
		ok, err := mgr.BatchRunStore().HasSuccessfulRun(ctx, models.JobTypeSymbolBatch, date)
		require.NoError(t, err)
		assert.True(t, ok, date.Format("2006-01-02"))
	}
}

func TestRunBackfillRespectsLimit(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "AAPL")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL")

	// Last run far beyond the 10-day backfill limit.
	ancient := target.AddDate(0, 0, -60)
	require.NoError(t, mgr.BatchRunStore().Record(ctx, &models.BatchRun{
		ID: uuid.NewString(), JobType: models.JobTypeSymbolBatch, Date: ancient, Success: true, CompletedAt: ancient,
	}))

	result, err := svc.Run(ctx, batchOptions(target, true, false, nil))
	require.NoError(t, err)

	floor := target.AddDate(0, 0, -testBatchConfig.BackfillLimitDays)
	for _, date := range result.DatesProcessed {
		assert.False(t, date.Before(floor), "date %s beyond backfill limit", date.Format("2006-01-02"))
	}
}

func TestRunPartialFailureIsItemized(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "AAPL")
	client.failing["BAD"] = true
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL", "BAD")

	result, err := svc.Run(ctx, batchOptions(target, false, false, nil))
	require.NoError(t, err, "per-symbol failure must not fail the run")

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "BAD", result.Errors[0].Unit)
	assert.Equal(t, PhaseFetch, result.Errors[0].Phase)
	assert.Equal(t, []time.Time{target}, result.DatesProcessed)

	// The healthy symbol still went through.
	exists, err := mgr.MetricsStore().Exists(ctx, "AAPL", target)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunScopedSymbols(t *testing.T) {
	ctx := context.Background()
	target := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, target, "NEWSYM")
	svc, mgr := newService(t, client)
	// A portfolio exists, but the scoped run must ignore its symbols.
	savePortfolio(t, mgr, "AAPL")

	result, err := svc.Run(ctx, batchOptions(target, false, false, []string{"NEWSYM"}))
	require.NoError(t, err)
	assert.Zero(t, result.Failed)

	exists, err := mgr.MetricsStore().Exists(ctx, "NEWSYM", target)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = mgr.MetricsStore().Exists(ctx, "AAPL", target)
	require.NoError(t, err)
	assert.False(t, exists, "unscoped symbol must not be processed")
}

func TestRunWeekendTargetRollsBack(t *testing.T) {
	ctx := context.Background()
	saturday := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	client := newFakeClient()
	seedUniverse(client, friday, "AAPL")
	svc, mgr := newService(t, client)
	savePortfolio(t, mgr, "AAPL")

	result, err := svc.Run(ctx, batchOptions(saturday, false, false, nil))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{friday}, result.DatesProcessed)
}
