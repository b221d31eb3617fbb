package models

import "time"

// Factor identifies one risk factor in the model.
type Factor string

// Standard factors regress the symbol's returns against a single proxy ETF.
const (
	FactorMarket   Factor = "market"
	FactorValue    Factor = "value"
	FactorGrowth   Factor = "growth"
	FactorMomentum Factor = "momentum"
	FactorQuality  Factor = "quality"
	FactorSize     Factor = "size"
	FactorLowVol   Factor = "low_volatility"
)

// Spread factors regress against a synthetic long-short return series built
// from two proxy legs instead of a single ETF.
const (
	FactorGrowthValueSpread Factor = "growth_value_spread"
	FactorMomentumSpread    Factor = "momentum_spread"
	FactorSizeSpread        Factor = "size_spread"
	FactorQualitySpread     Factor = "quality_spread"
)

// FactorProxy maps a standard factor to its proxy ETF.
type FactorProxy struct {
	Factor Factor
	Symbol string
}

// SpreadProxy maps a spread factor to its long and short proxy legs.
type SpreadProxy struct {
	Factor   Factor
	LongLeg  string
	ShortLeg string
}

// StandardFactorProxies is the fixed proxy table for single-ETF factors.
var StandardFactorProxies = []FactorProxy{
	{FactorMarket, "SPY"},
	{FactorValue, "VTV"},
	{FactorGrowth, "VUG"},
	{FactorMomentum, "MTUM"},
	{FactorQuality, "QUAL"},
	{FactorSize, "IWM"},
	{FactorLowVol, "USMV"},
}

// SpreadFactorProxies is the fixed leg table for long-short spread factors.
var SpreadFactorProxies = []SpreadProxy{
	{FactorGrowthValueSpread, "VUG", "VTV"},
	{FactorMomentumSpread, "MTUM", "SPY"},
	{FactorSizeSpread, "IWM", "SPY"},
	{FactorQualitySpread, "QUAL", "SPY"},
}

// FactorProxySymbols returns the distinct proxy ETF symbols needed by the
// factor model. These are always part of the symbol batch universe.
func FactorProxySymbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for _, p := range StandardFactorProxies {
		add(p.Symbol)
	}
	for _, p := range SpreadFactorProxies {
		add(p.LongLeg)
		add(p.ShortLeg)
	}
	return symbols
}

// SubjectType distinguishes symbol-level and portfolio-level exposures.
type SubjectType string

const (
	SubjectSymbol    SubjectType = "symbol"
	SubjectPortfolio SubjectType = "portfolio"
)

// FactorExposure is one persisted beta. Symbol-level rows are the unit of
// computation; portfolio-level rows are value-weighted aggregations of the
// positions' symbol betas and are never independently regressed.
type FactorExposure struct {
	SubjectType    SubjectType `json:"subject_type"`
	Subject        string      `json:"subject"` // symbol or portfolio ID
	Factor         Factor      `json:"factor"`
	Date           time.Time   `json:"date"`
	WindowDays     int         `json:"window_days"`
	Beta           float64     `json:"exposure_value"`
	DollarExposure float64     `json:"dollar_exposure"`
	RSquared       float64     `json:"r_squared"`
	WindowStart    time.Time   `json:"window_start"`
	WindowEnd      time.Time   `json:"window_end"`
	Observations   int         `json:"observations"`
	// WeightingScheme is set on portfolio-level rows only: "absolute" or
	// "signed". Both conventions are persisted side by side until the
	// product decision on short-position beta aggregation is made.
	WeightingScheme string    `json:"weighting_scheme,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FactorResult is the outcome of one symbol regression run across all
// factors. Insufficient history yields Available=false with a reason, never
// an error.
type FactorResult struct {
	Symbol      string             `json:"symbol"`
	Date        time.Time          `json:"date"`
	WindowDays  int                `json:"window_days"`
	Available   bool               `json:"available"`
	Reason      string             `json:"reason,omitempty"`
	Betas       map[Factor]float64 `json:"betas,omitempty"`
	RSquared    map[Factor]float64 `json:"r_squared,omitempty"`
	WindowStart time.Time          `json:"window_start,omitempty"`
	WindowEnd   time.Time          `json:"window_end,omitempty"`
	// Observations is the paired return count actually used per factor.
	Observations map[Factor]int `json:"observations,omitempty"`
}

// Insufficiency reason codes surfaced on unavailable results.
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoPriceData         = "no_price_data"
	ReasonAllPrivate          = "all_positions_private"
)
