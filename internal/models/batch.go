package models

import "time"

// Batch job types recorded in the batch_runs bookkeeping table.
const (
	JobTypeSymbolBatch      = "symbol_batch"
	JobTypePortfolioRefresh = "portfolio_refresh"
	JobTypeOnboarding       = "onboarding"
)

// BatchRun records one completed batch phase for one trading date. The
// symbol batch writes a row per processed date; backfill discovery and the
// refresh wait gates read them.
type BatchRun struct {
	ID          string    `json:"id"`
	JobType     string    `json:"job_type"`
	Date        time.Time `json:"date"`
	Success     bool      `json:"success"`
	CompletedAt time.Time `json:"completed_at"`
}

// BatchError is one recovered per-unit failure inside a batch run.
type BatchError struct {
	Unit   string `json:"unit"` // symbol or portfolio ID
	Date   string `json:"date,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Reason string `json:"reason"`
}

// SymbolBatchResult is the structured outcome of a symbol batch run.
// Partial failure is the normal case: per-unit errors are itemized, never
// escalated to an all-or-nothing failure.
type SymbolBatchResult struct {
	DatesProcessed []time.Time   `json:"dates_processed"`
	DatesFailed    []time.Time   `json:"dates_failed"`
	Calculated     int           `json:"calculated"`
	Cached         int           `json:"cached"`
	Failed         int           `json:"failed"`
	Errors         []BatchError  `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// RefreshPhase names the four per-portfolio refresh phases, in order.
type RefreshPhase string

const (
	PhaseSnapshot          RefreshPhase = "snapshot"
	PhaseCorrelation       RefreshPhase = "correlation"
	PhaseFactorAggregation RefreshPhase = "factor_aggregation"
	PhaseStressTest        RefreshPhase = "stress_test"
)

// PortfolioRefreshResult is the structured outcome of a portfolio refresh run.
type PortfolioRefreshResult struct {
	Date                   time.Time                      `json:"date"`
	PortfoliosProcessed    int                            `json:"portfolios_processed"`
	PortfoliosFailed       int                            `json:"portfolios_failed"`
	SnapshotsCreated       int                            `json:"snapshots_created"`
	CorrelationsCalculated int                            `json:"correlations_calculated"`
	FactorsAggregated      int                            `json:"factors_aggregated"`
	StressTestsCalculated  int                            `json:"stress_tests_calculated"`
	PhaseDurations         map[RefreshPhase]time.Duration `json:"phase_durations"`
	Errors                 []BatchError                   `json:"errors,omitempty"`
	Duration               time.Duration                  `json:"duration"`
}

// OnboardingResult is the structured outcome of an onboarding fast-path run.
type OnboardingResult struct {
	PortfolioID      string                  `json:"portfolio_id"`
	Date             time.Time               `json:"date"`
	KnownSymbols     []string                `json:"known"`
	UnknownSymbols   []string                `json:"unknown"`
	SymbolProcessing *SymbolBatchResult      `json:"symbol_processing_result,omitempty"`
	PortfolioRefresh *PortfolioRefreshResult `json:"portfolio_refresh_result,omitempty"`
	Duration         time.Duration           `json:"duration"`
}

// StressScenario shocks the portfolio's aggregated factor exposures.
type StressScenario struct {
	Name string `json:"name"`
	// Shocks maps factor to a return shock (e.g. -0.20 for a 20% drawdown).
	Shocks map[Factor]float64 `json:"shocks"`
}

// StressTestResult is one scenario applied to one portfolio's exposures.
type StressTestResult struct {
	PortfolioID string    `json:"portfolio_id"`
	Date        time.Time `json:"date"`
	Scenario    string    `json:"scenario"`
	// EstimatedPnL is the dollar impact implied by the scenario shocks
	// against the aggregated dollar exposures.
	EstimatedPnL float64 `json:"estimated_pnl"`
	// EstimatedPnLPct is the impact as a fraction of total market value.
	EstimatedPnLPct float64   `json:"estimated_pnl_pct"`
	CreatedAt       time.Time `json:"created_at"`
}

// DefaultStressScenarios is the fixed scenario library applied by the
// refresh processor's stress phase.
var DefaultStressScenarios = []StressScenario{
	{
		Name: "market_crash",
		Shocks: map[Factor]float64{
			FactorMarket: -0.20,
		},
	},
	{
		Name: "rate_shock_growth_selloff",
		Shocks: map[Factor]float64{
			FactorMarket:            -0.08,
			FactorGrowthValueSpread: -0.10,
		},
	},
	{
		Name: "momentum_unwind",
		Shocks: map[Factor]float64{
			FactorMomentumSpread: -0.15,
		},
	},
	{
		Name: "small_cap_squeeze",
		Shocks: map[Factor]float64{
			FactorSizeSpread: 0.10,
			FactorMarket:     -0.05,
		},
	},
	{
		Name: "flight_to_quality",
		Shocks: map[Factor]float64{
			FactorMarket:        -0.12,
			FactorQualitySpread: 0.06,
		},
	},
}
