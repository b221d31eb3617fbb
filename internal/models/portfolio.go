package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind classifies a position's instrument. Direction is carried by
// the sign of the quantity, not by the kind.
type InstrumentKind string

const (
	InstrumentEquity InstrumentKind = "equity"
	InstrumentCall   InstrumentKind = "call"
	InstrumentPut    InstrumentKind = "put"
)

// Multiplier returns the per-unit contract scaling: 100 for option contracts,
// 1 for equities. The multiplier is always derived from the kind, never
// stored ad hoc.
func (k InstrumentKind) Multiplier() decimal.Decimal {
	switch k {
	case InstrumentCall, InstrumentPut:
		return decimal.NewFromInt(100)
	default:
		return decimal.NewFromInt(1)
	}
}

// Portfolio is one tenant's book.
type Portfolio struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SeedEquity decimal.Decimal `json:"seed_equity"`
	Positions  []*Position     `json:"positions,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ActiveSymbols returns the distinct symbols of non-private open positions.
func (p *Portfolio) ActiveSymbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, pos := range p.Positions {
		if pos.Private || pos.Quantity.IsZero() {
			continue
		}
		if !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			symbols = append(symbols, pos.Symbol)
		}
	}
	return symbols
}

// Position is a single holding. Quantity is signed: negative means short.
type Position struct {
	ID            string          `json:"id"`
	PortfolioID   string          `json:"portfolio_id"`
	Symbol        string          `json:"symbol"`
	Kind          InstrumentKind  `json:"kind"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryDate     time.Time       `json:"entry_date"`
	LastPrice     decimal.Decimal `json:"last_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// Private marks holdings without a daily price feed (illiquid or
	// unlisted). Private positions carry no daily P&L and are excluded
	// from correlation and factor work.
	Private   bool      `json:"private"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketValue is quantity × last price × multiplier. Signed: a short
// position has negative market value.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice).Mul(p.Kind.Multiplier())
}

// PortfolioSnapshot is one day of the append-only per-portfolio time series.
// EquityBalance is book value rolled forward from the prior snapshot;
// TotalValue is the current market value of all positions. The two are
// deliberately distinct.
type PortfolioSnapshot struct {
	PortfolioID   string          `json:"portfolio_id"`
	Date          time.Time       `json:"date"`
	EquityBalance decimal.Decimal `json:"equity_balance"`
	TotalValue    decimal.Decimal `json:"total_value"`
	DailyPnL      decimal.Decimal `json:"daily_pnl"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl"`
	LongExposure  decimal.Decimal `json:"long_exposure"`
	ShortExposure decimal.Decimal `json:"short_exposure"`
	GrossExposure decimal.Decimal `json:"gross_exposure"`
	NetExposure   decimal.Decimal `json:"net_exposure"`
	Volatility    *float64        `json:"volatility,omitempty"`
	Beta          *float64        `json:"beta,omitempty"`
	// AnchorDate is the prior snapshot date the equity rollforward anchored
	// on. Zero when the portfolio had no prior snapshot at all.
	AnchorDate time.Time `json:"anchor_date,omitempty"`
	// AnchorDegraded is set only when no prior snapshot existed and the
	// rollforward had to fall back to seed equity.
	AnchorDegraded bool      `json:"anchor_degraded"`
	CreatedAt      time.Time `json:"created_at"`
}

// PortfolioPnL is the result of one portfolio P&L computation.
type PortfolioPnL struct {
	PortfolioID      string          `json:"portfolio_id"`
	Date             time.Time       `json:"date"`
	Success          bool            `json:"success"`
	DailyPnL         decimal.Decimal `json:"daily_pnl"`
	NewEquityBalance decimal.Decimal `json:"new_equity_balance"`
	AnchorDate       time.Time       `json:"anchor_date,omitempty"`
	AnchorDegraded   bool            `json:"anchor_degraded"`
	PositionsPriced  int             `json:"positions_priced"`
	PositionsSkipped int             `json:"positions_skipped"`
}
