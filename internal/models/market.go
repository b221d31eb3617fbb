// Package models defines the data structures persisted and exchanged by the
// riskcore batch pipeline.
package models

import "time"

// PriceBar is one day of OHLCV data for a symbol. Rows are unique on
// (symbol, date) and written with upsert-on-conflict semantics so concurrent
// fetchers and retries are tolerated.
type PriceBar struct {
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	DataSource string    `json:"data_source"`
}

// SymbolMetrics holds the once-per-symbol-per-day artifacts produced by the
// symbol batch: close price, trailing return windows, and a data-quality
// score. Rows are created once and never mutated except by a forced backfill.
type SymbolMetrics struct {
	Symbol           string    `json:"symbol"`
	Date             time.Time `json:"date"`
	Close            float64   `json:"close"`
	Return1D         *float64  `json:"return_1d,omitempty"`
	ReturnMTD        *float64  `json:"return_mtd,omitempty"`
	ReturnYTD        *float64  `json:"return_ytd,omitempty"`
	Return1M         *float64  `json:"return_1m,omitempty"`
	Return3M         *float64  `json:"return_3m,omitempty"`
	Return1Y         *float64  `json:"return_1y,omitempty"`
	DataQualityScore float64   `json:"data_quality_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProviderInfo describes a market data provider variant.
type ProviderInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"` // lower is tried first
	// QuotaKind documents the provider's limiting regime:
	// "none", "per_minute", or "per_day".
	QuotaKind string `json:"quota_kind"`
}
