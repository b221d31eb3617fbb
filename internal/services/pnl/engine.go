// Package pnl implements daily position P&L and the portfolio equity
// rollforward that anchors each snapshot on the most recent prior one.
package pnl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// Skip reasons recorded on unpriced positions.
const (
	SkipPrivate      = "private_position"
	SkipNoPriceData  = "no_price_data"
	SkipNoPriorClose = "no_prior_close"
)

// PositionPnL is one position's contribution to a day's portfolio P&L.
type PositionPnL struct {
	Symbol      string
	Priced      bool
	SkipReason  string
	DailyPnL    decimal.Decimal
	MarketValue decimal.Decimal
	LastPrice   decimal.Decimal
}

// Engine computes position and portfolio P&L from the price cache and rolls
// portfolio equity forward across snapshots.
type Engine struct {
	prices    interfaces.PriceStore
	snapshots interfaces.SnapshotStore
	logger    *common.Logger

	lookbackDays int
}

// NewEngine creates a P&L engine.
func NewEngine(prices interfaces.PriceStore, snapshots interfaces.SnapshotStore, cfg common.BatchConfig, logger *common.Logger) *Engine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Engine{
		prices:       prices,
		snapshots:    snapshots,
		logger:       logger,
		lookbackDays: cfg.PriceLookbackDays,
	}
}

// ComputePositionPnL prices one position for the date. Daily P&L is
// (close − prior close) × signed quantity × multiplier, where the prior close
// comes from a bounded backward search so a holiday gap widens the measured
// interval instead of dropping the position. A skip is a state, not an error.
func (e *Engine) ComputePositionPnL(ctx context.Context, pos *models.Position, date time.Time) (*PositionPnL, error) {
	date = common.Day(date)
	result := &PositionPnL{Symbol: pos.Symbol}

	if pos.Private {
		// Private holdings have no feed: carry the last recorded value.
		result.SkipReason = SkipPrivate
		result.MarketValue = pos.MarketValue()
		result.LastPrice = pos.LastPrice
		return result, nil
	}

	bar, err := e.prices.GetBar(ctx, pos.Symbol, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			result.SkipReason = SkipNoPriceData
			result.MarketValue = pos.MarketValue()
			result.LastPrice = pos.LastPrice
			return result, nil
		}
		return nil, fmt.Errorf("get bar %s@%s: %w", pos.Symbol, date.Format("2006-01-02"), err)
	}

	closePrice := decimal.NewFromFloat(bar.Close)
	result.LastPrice = closePrice
	result.MarketValue = pos.Quantity.Mul(closePrice).Mul(pos.Kind.Multiplier())

	prev, err := e.prices.GetLatestBarBefore(ctx, pos.Symbol, date, e.lookbackDays)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			result.SkipReason = SkipNoPriorClose
			return result, nil
		}
		return nil, fmt.Errorf("get prior bar %s@%s: %w", pos.Symbol, date.Format("2006-01-02"), err)
	}

	prevClose := decimal.NewFromFloat(prev.Close)
	result.Priced = true
	result.DailyPnL = closePrice.Sub(prevClose).
		Mul(pos.Quantity).
		Mul(pos.Kind.Multiplier())
	return result, nil
}

// ComputePortfolioSnapshot prices every position, sums the day's P&L, and
// rolls equity forward from the most recent existing prior snapshot. Seed
// equity is the anchor only when no prior snapshot exists at all; that case
// is flagged degraded rather than silently absorbed.
//
// Positions are updated in place with their new last price and unrealized
// P&L; the caller decides whether to persist the portfolio.
func (e *Engine) ComputePortfolioSnapshot(ctx context.Context, p *models.Portfolio, date time.Time) (*models.PortfolioSnapshot, *models.PortfolioPnL, error) {
	date = common.Day(date)

	var (
		dailyPnL decimal.Decimal
		long     decimal.Decimal
		short    decimal.Decimal
		priced   int
		skipped  int
	)

	for _, pos := range p.Positions {
		if pos.Quantity.IsZero() {
			continue
		}

		ppnl, err := e.ComputePositionPnL(ctx, pos, date)
		if err != nil {
			return nil, nil, err
		}

		if ppnl.Priced {
			priced++
			dailyPnL = dailyPnL.Add(ppnl.DailyPnL)
			pos.LastPrice = ppnl.LastPrice
			pos.UnrealizedPnL = ppnl.LastPrice.Sub(pos.EntryPrice).
				Mul(pos.Quantity).
				Mul(pos.Kind.Multiplier())
			pos.UpdatedAt = time.Now().UTC()
		} else {
			skipped++
			e.logger.Debug().
				Str("portfolio", p.ID).
				Str("symbol", pos.Symbol).
				Str("reason", ppnl.SkipReason).
				Msg("Position skipped in daily P&L")
		}

		if ppnl.MarketValue.IsNegative() {
			short = short.Add(ppnl.MarketValue)
		} else {
			long = long.Add(ppnl.MarketValue)
		}
	}

	snapshot := &models.PortfolioSnapshot{
		PortfolioID:   p.ID,
		Date:          date,
		DailyPnL:      dailyPnL,
		TotalValue:    long.Add(short),
		LongExposure:  long,
		ShortExposure: short,
		GrossExposure: long.Sub(short),
		NetExposure:   long.Add(short),
		CreatedAt:     time.Now().UTC(),
	}

	prior, err := e.snapshots.GetLatestBefore(ctx, p.ID, date)
	switch {
	case err == nil:
		snapshot.EquityBalance = prior.EquityBalance.Add(dailyPnL)
		snapshot.CumulativePnL = prior.CumulativePnL.Add(dailyPnL)
		snapshot.AnchorDate = prior.Date
	case errors.Is(err, storage.ErrNotFound):
		snapshot.EquityBalance = p.SeedEquity.Add(dailyPnL)
		snapshot.CumulativePnL = dailyPnL
		snapshot.AnchorDegraded = true
		e.logger.Warn().
			Str("portfolio", p.ID).
			Str("date", date.Format("2006-01-02")).
			Msg("No prior snapshot, anchoring equity on seed")
	default:
		return nil, nil, fmt.Errorf("get prior snapshot %s: %w", p.ID, err)
	}

	result := &models.PortfolioPnL{
		PortfolioID:      p.ID,
		Date:             date,
		Success:          true,
		DailyPnL:         dailyPnL,
		NewEquityBalance: snapshot.EquityBalance,
		AnchorDate:       snapshot.AnchorDate,
		AnchorDegraded:   snapshot.AnchorDegraded,
		PositionsPriced:  priced,
		PositionsSkipped: skipped,
	}
	return snapshot, result, nil
}
