// Package factors implements the factor regression engine: per-symbol OLS
// betas against proxy ETF returns, plus the value-weighted aggregation that
// produces portfolio-level exposures.
package factors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// Weighting schemes persisted on portfolio-level exposure rows. Both are
// written side by side; see DESIGN.md for the open product decision on
// short-position beta aggregation.
const (
	WeightingAbsolute = "absolute"
	WeightingSigned   = "signed"
)

// Engine computes factor exposures from the price cache. It is a pure
// consumer of prices: it never fetches from providers.
type Engine struct {
	prices  interfaces.PriceStore
	factors interfaces.FactorStore
	logger  *common.Logger

	windowDays      int
	minObservations int
	lookbackDays    int
}

// NewEngine creates a factor engine.
func NewEngine(prices interfaces.PriceStore, factorStore interfaces.FactorStore, cfg common.BatchConfig, logger *common.Logger) *Engine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Engine{
		prices:          prices,
		factors:         factorStore,
		logger:          logger,
		windowDays:      cfg.RegressionWindowDays,
		minObservations: cfg.MinRegressionObservations,
		lookbackDays:    cfg.PriceLookbackDays,
	}
}

// ComputeSymbolFactors regresses the symbol's trailing daily returns against
// every standard and spread factor series. Insufficient history is reported
// via Available=false on the result, never as an error: a young listing is an
// expected state, not a failure.
func (e *Engine) ComputeSymbolFactors(ctx context.Context, symbol string, date time.Time) (*models.FactorResult, error) {
	date = common.Day(date)
	from := date.AddDate(0, 0, -e.windowDays)

	result := &models.FactorResult{
		Symbol:      symbol,
		Date:        date,
		WindowDays:  e.windowDays,
		WindowStart: from,
		WindowEnd:   date,
	}

	symbolReturns, err := e.returnSeries(ctx, symbol, from, date)
	if err != nil {
		return nil, err
	}
	if len(symbolReturns) == 0 {
		result.Reason = models.ReasonNoPriceData
		return result, nil
	}
	if len(symbolReturns) < e.minObservations {
		result.Reason = models.ReasonInsufficientHistory
		return result, nil
	}

	proxyReturns := make(map[string]map[time.Time]float64)
	for _, proxy := range models.FactorProxySymbols() {
		rs, err := e.returnSeries(ctx, proxy, from, date)
		if err != nil {
			return nil, err
		}
		proxyReturns[proxy] = rs
	}

	result.Betas = make(map[models.Factor]float64)
	result.RSquared = make(map[models.Factor]float64)
	result.Observations = make(map[models.Factor]int)

	for _, p := range models.StandardFactorProxies {
		e.regress(result, p.Factor, symbolReturns, proxyReturns[p.Symbol])
	}
	for _, p := range models.SpreadFactorProxies {
		spread := spreadReturns(proxyReturns[p.LongLeg], proxyReturns[p.ShortLeg])
		e.regress(result, p.Factor, symbolReturns, spread)
	}

	if len(result.Betas) == 0 {
		result.Betas, result.RSquared, result.Observations = nil, nil, nil
		result.Reason = models.ReasonInsufficientHistory
		return result, nil
	}

	result.Available = true
	return result, nil
}

// regress pairs the two return series on their shared dates and records the
// OLS slope when enough paired observations exist. A thin factor series only
// drops that one factor from the result, as does a degenerate one: a
// zero-variance factor series (e.g. a spread whose legs move in lockstep) has
// no defined slope, and a NaN beta must never reach the store.
func (e *Engine) regress(result *models.FactorResult, factor models.Factor, symbolReturns, factorReturns map[time.Time]float64) {
	xs, ys := alignedPairs(factorReturns, symbolReturns)
	if len(xs) < e.minObservations {
		return
	}

	_, beta := stat.LinearRegression(xs, ys, nil, false)
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(beta) || math.IsNaN(r) {
		return
	}

	result.Betas[factor] = beta
	result.RSquared[factor] = r * r
	result.Observations[factor] = len(xs)
}

// ExposureRows converts an available FactorResult into persistable
// symbol-level exposure rows.
func ExposureRows(result *models.FactorResult) []*models.FactorExposure {
	if !result.Available {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*models.FactorExposure, 0, len(result.Betas))
	for factor, beta := range result.Betas {
		rows = append(rows, &models.FactorExposure{
			SubjectType:  models.SubjectSymbol,
			Subject:      result.Symbol,
			Factor:       factor,
			Date:         result.Date,
			WindowDays:   result.WindowDays,
			Beta:         beta,
			RSquared:     result.RSquared[factor],
			WindowStart:  result.WindowStart,
			WindowEnd:    result.WindowEnd,
			Observations: result.Observations[factor],
			CreatedAt:    now,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Factor < rows[j].Factor })
	return rows
}

// AggregatePortfolio rolls the positions' symbol betas up to portfolio-level
// exposures. Weights come from position market values priced off the cache;
// rows are emitted under both the absolute and the signed weighting
// convention. Positions whose symbols have no exposure rows for the date are
// skipped, not failed.
func (e *Engine) AggregatePortfolio(ctx context.Context, p *models.Portfolio, date time.Time) ([]*models.FactorExposure, error) {
	date = common.Day(date)

	type weighted struct {
		weight float64 // |mv| / gross
		signed float64 // mv / gross
		dollar float64 // signed market value
		betas  map[models.Factor]float64
		rsq    map[models.Factor]float64
	}

	var entries []weighted
	var gross float64

	for _, pos := range p.Positions {
		if pos.Private || pos.Quantity.IsZero() {
			continue
		}
		bar, err := e.latestBar(ctx, pos.Symbol, date)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		rows, err := e.factors.GetSubjectExposures(ctx, models.SubjectSymbol, pos.Symbol, date)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}

		mv, _ := pos.Quantity.
			Mul(decimal.NewFromFloat(bar.Close)).
			Mul(pos.Kind.Multiplier()).
			Float64()

		entry := weighted{
			dollar: mv,
			betas:  make(map[models.Factor]float64, len(rows)),
			rsq:    make(map[models.Factor]float64, len(rows)),
		}
		for _, row := range rows {
			entry.betas[row.Factor] = row.Beta
			entry.rsq[row.Factor] = row.RSquared
		}
		entries = append(entries, entry)
		if mv < 0 {
			gross -= mv
		} else {
			gross += mv
		}
	}

	if len(entries) == 0 || gross == 0 {
		return nil, nil
	}

	for i := range entries {
		mv := entries[i].dollar
		abs := mv
		if abs < 0 {
			abs = -abs
		}
		entries[i].weight = abs / gross
		entries[i].signed = mv / gross
	}

	type agg struct {
		absBeta, signedBeta float64
		dollar              float64
		rsq                 float64
		count               int
	}
	byFactor := make(map[models.Factor]*agg)
	for _, entry := range entries {
		for factor, beta := range entry.betas {
			a := byFactor[factor]
			if a == nil {
				a = &agg{}
				byFactor[factor] = a
			}
			a.absBeta += entry.weight * beta
			a.signedBeta += entry.signed * beta
			a.dollar += entry.dollar * beta
			a.rsq += entry.weight * entry.rsq[factor]
			a.count++
		}
	}

	now := time.Now().UTC()
	from := date.AddDate(0, 0, -e.windowDays)
	rows := make([]*models.FactorExposure, 0, len(byFactor)*2)
	for factor, a := range byFactor {
		base := models.FactorExposure{
			SubjectType:    models.SubjectPortfolio,
			Subject:        p.ID,
			Factor:         factor,
			Date:           date,
			WindowDays:     e.windowDays,
			DollarExposure: a.dollar,
			RSquared:       a.rsq,
			WindowStart:    from,
			WindowEnd:      date,
			Observations:   a.count,
			CreatedAt:      now,
		}

		absRow := base
		absRow.Beta = a.absBeta
		absRow.WeightingScheme = WeightingAbsolute

		signedRow := base
		signedRow.Beta = a.signedBeta
		signedRow.WeightingScheme = WeightingSigned

		rows = append(rows, &absRow, &signedRow)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Factor != rows[j].Factor {
			return rows[i].Factor < rows[j].Factor
		}
		return rows[i].WeightingScheme < rows[j].WeightingScheme
	})
	return rows, nil
}

// latestBar returns the bar for date, falling back to the bounded backward
// lookback when the date itself has no cached bar.
func (e *Engine) latestBar(ctx context.Context, symbol string, date time.Time) (*models.PriceBar, error) {
	bar, err := e.prices.GetBar(ctx, symbol, date)
	if err == nil {
		return bar, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get bar %s@%s: %w", symbol, date.Format("2006-01-02"), err)
	}
	return e.prices.GetLatestBarBefore(ctx, symbol, date, e.lookbackDays)
}

// returnSeries builds date-keyed simple daily returns from consecutive cached
// closes in [from, to].
func (e *Engine) returnSeries(ctx context.Context, symbol string, from, to time.Time) (map[time.Time]float64, error) {
	bars, err := e.prices.GetSeries(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("get series %s: %w", symbol, err)
	}

	returns := make(map[time.Time]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns[common.Day(bars[i].Date)] = bars[i].Close/prev - 1
	}
	return returns, nil
}

// spreadReturns builds the long-minus-short synthetic series over the dates
// both legs share.
func spreadReturns(long, short map[time.Time]float64) map[time.Time]float64 {
	spread := make(map[time.Time]float64)
	for date, l := range long {
		if s, ok := short[date]; ok {
			spread[date] = l - s
		}
	}
	return spread
}

// alignedPairs intersects the two series on date and returns the paired
// observations in chronological order.
func alignedPairs(xSeries, ySeries map[time.Time]float64) (xs, ys []float64) {
	var dates []time.Time
	for date := range xSeries {
		if _, ok := ySeries[date]; ok {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	xs = make([]float64, 0, len(dates))
	ys = make([]float64, 0, len(dates))
	for _, date := range dates {
		xs = append(xs, xSeries[date])
		ys = append(ys, ySeries[date])
	}
	return xs, ys
}
