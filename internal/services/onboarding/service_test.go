package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage/memory"
)

type fakeSymbolBatch struct {
	mu   sync.Mutex
	runs []interfaces.SymbolBatchOptions
}

func (f *fakeSymbolBatch) Run(ctx context.Context, opts interfaces.SymbolBatchOptions) (*models.SymbolBatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return &models.SymbolBatchResult{Calculated: len(opts.Symbols)}, nil
}

type fakeRefresh struct {
	mu   sync.Mutex
	runs []interfaces.RefreshOptions
}

func (f *fakeRefresh) Run(ctx context.Context, opts interfaces.RefreshOptions) (*models.PortfolioRefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return &models.PortfolioRefreshResult{Date: opts.TargetDate, PortfoliosProcessed: len(opts.PortfolioIDs)}, nil
}

func setup(t *testing.T) (*Service, *memory.Manager, *fakeSymbolBatch, *fakeRefresh) {
	t.Helper()
	mgr := memory.NewManager()
	batch := &fakeSymbolBatch{}
	refresh := &fakeRefresh{}
	return NewService(mgr, batch, refresh, nil), mgr, batch, refresh
}

func savePortfolio(t *testing.T, mgr *memory.Manager, id string, symbols ...string) {
	t.Helper()
	p := &models.Portfolio{ID: id, SeedEquity: decimal.NewFromInt(1000)}
	for _, symbol := range symbols {
		p.Positions = append(p.Positions, &models.Position{
			Symbol: symbol, Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(1),
		})
	}
	require.NoError(t, mgr.PortfolioStore().Save(context.Background(), p))
}

func markKnown(t *testing.T, mgr *memory.Manager, symbol string, date time.Time) {
	t.Helper()
	require.NoError(t, mgr.FactorStore().SaveExposures(context.Background(), []*models.FactorExposure{{
		SubjectType: models.SubjectSymbol,
		Subject:     symbol,
		Factor:      models.FactorMarket,
		Date:        date,
		WindowDays:  120,
		Beta:        1.0,
		CreatedAt:   time.Now().UTC(),
	}}))
}

func TestOnboardClassifiesAndScopesBatch(t *testing.T) {
	ctx := context.Background()
	svc, mgr, batch, refresh := setup(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	savePortfolio(t, mgr, "p1", "AAPL", "OBSCURE1", "OBSCURE2")
	markKnown(t, mgr, "AAPL", date)

	result, err := svc.OnboardPortfolio(ctx, "p1", date)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, result.KnownSymbols)
	assert.ElementsMatch(t, []string{"OBSCURE1", "OBSCURE2"}, result.UnknownSymbols)

	// The scoped batch ran for the unknown symbols only.
	require.Len(t, batch.runs, 1)
	assert.ElementsMatch(t, []string{"OBSCURE1", "OBSCURE2"}, batch.runs[0].Symbols)
	assert.Equal(t, date, batch.runs[0].TargetDate)
	require.NotNil(t, result.SymbolProcessing)

	// The refresh ran scoped to the one portfolio, without wait gates.
	require.Len(t, refresh.runs, 1)
	assert.Equal(t, []string{"p1"}, refresh.runs[0].PortfolioIDs)
	assert.False(t, refresh.runs[0].WaitForSymbolBatch)
	require.NotNil(t, result.PortfolioRefresh)

	// Completion recorded so the nightly refresh gate can observe it.
	ok, err := mgr.BatchRunStore().HasSuccessfulRun(ctx, models.JobTypeOnboarding, date)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOnboardAllKnownSkipsSymbolBatch(t *testing.T) {
	ctx := context.Background()
	svc, mgr, batch, refresh := setup(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	savePortfolio(t, mgr, "p1", "AAPL", "MSFT")
	markKnown(t, mgr, "AAPL", date)
	markKnown(t, mgr, "MSFT", date)

	result, err := svc.OnboardPortfolio(ctx, "p1", date)
	require.NoError(t, err)

	assert.Empty(t, result.UnknownSymbols)
	assert.Nil(t, result.SymbolProcessing)
	assert.Empty(t, batch.runs, "no unknown symbols, no batch run")
	require.Len(t, refresh.runs, 1)
}

func TestOnboardMissingPortfolio(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.OnboardPortfolio(context.Background(), "nope", time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestOnboardWeekendDateRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, mgr, _, refresh := setup(t)

	savePortfolio(t, mgr, "p1")

	saturday := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	result, err := svc.OnboardPortfolio(ctx, "p1", saturday)
	require.NoError(t, err)
	assert.Equal(t, friday, result.Date)
	require.Len(t, refresh.runs, 1)
	assert.Equal(t, friday, refresh.runs[0].TargetDate)
}

func TestOnboardPrivateOnlyPortfolio(t *testing.T) {
	ctx := context.Background()
	svc, mgr, batch, _ := setup(t)
	date := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	p := &models.Portfolio{ID: "p1", SeedEquity: decimal.NewFromInt(1000), Positions: []*models.Position{
		{Symbol: "PRIV", Kind: models.InstrumentEquity, Quantity: decimal.NewFromInt(1), Private: true},
	}}
	require.NoError(t, mgr.PortfolioStore().Save(ctx, p))

	result, err := svc.OnboardPortfolio(ctx, "p1", date)
	require.NoError(t, err)
	assert.Empty(t, result.KnownSymbols)
	assert.Empty(t, result.UnknownSymbols)
	assert.Empty(t, batch.runs)
}
