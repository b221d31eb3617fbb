package models

import "time"

// PairwiseCorrelation is one symbol pair in a portfolio correlation matrix.
// DataPoints equals the paired-observation count the significance test ran
// on; the two are produced from the same slice, never counted separately.
type PairwiseCorrelation struct {
	SymbolA     string  `json:"symbol_a"`
	SymbolB     string  `json:"symbol_b"`
	Correlation float64 `json:"correlation"`
	DataPoints  int     `json:"data_points"`
	TStatistic  float64 `json:"t_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// CorrelationCalculation is the per-portfolio per-date correlation result.
// Available=false with a reason is an explicit skip (e.g. every holding is
// private), not an error.
type CorrelationCalculation struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Date        time.Time `json:"date"`
	Available   bool      `json:"available"`
	Reason      string    `json:"reason,omitempty"`

	DurationDays int                   `json:"duration_days"`
	MinOverlap   int                   `json:"min_overlap"`
	Pairs        []PairwiseCorrelation `json:"pairs,omitempty"`
	// PairsSkipped counts pairs dropped for insufficient overlap.
	PairsSkipped int `json:"pairs_skipped"`

	// AverageCorrelation is the mean of computed pairwise correlations.
	AverageCorrelation float64 `json:"average_correlation"`
	// EffectivePositionCount is the Herfindahl-style diversification
	// measure 1/Σw² over position weights.
	EffectivePositionCount float64   `json:"effective_position_count"`
	CreatedAt              time.Time `json:"created_at"`
}
