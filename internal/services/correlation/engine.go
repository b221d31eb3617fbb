// Package correlation implements the pairwise return correlation engine and
// the Herfindahl-style diversification measure.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// Skip reasons surfaced on unavailable calculations.
const (
	ReasonTooFewSymbols = "insufficient_positions"
)

// significanceLevel is the two-tailed p-value threshold for flagging a pair.
const significanceLevel = 0.05

// Engine computes per-portfolio pairwise correlations from cached prices.
type Engine struct {
	prices interfaces.PriceStore
	logger *common.Logger

	durationDays int
	minOverlap   int
	lookbackDays int
}

// NewEngine creates a correlation engine. The configured overlap floor is
// clamped to 3: the t-test needs n-2 positive degrees of freedom, and two
// points always correlate perfectly.
func NewEngine(prices interfaces.PriceStore, cfg common.BatchConfig, logger *common.Logger) *Engine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	minOverlap := cfg.MinCorrelationOverlap
	if minOverlap < 3 {
		minOverlap = 3
	}
	return &Engine{
		prices:       prices,
		logger:       logger,
		durationDays: cfg.CorrelationDurationDays,
		minOverlap:   minOverlap,
		lookbackDays: cfg.PriceLookbackDays,
	}
}

// ComputePortfolioCorrelations builds the full pairwise matrix over the
// portfolio's distinct non-private symbols. Pairs without enough overlapping
// observations are counted as skipped, not errored; a portfolio that cannot
// produce any matrix at all comes back Available=false with a reason.
func (e *Engine) ComputePortfolioCorrelations(ctx context.Context, p *models.Portfolio, date time.Time) (*models.CorrelationCalculation, error) {
	date = common.Day(date)

	calc := &models.CorrelationCalculation{
		ID:           uuid.NewString(),
		PortfolioID:  p.ID,
		Date:         date,
		DurationDays: e.durationDays,
		MinOverlap:   e.minOverlap,
		CreatedAt:    time.Now().UTC(),
	}

	symbols := p.ActiveSymbols()
	if len(symbols) == 0 {
		if hasOnlyPrivatePositions(p) {
			calc.Reason = models.ReasonAllPrivate
		} else {
			calc.Reason = ReasonTooFewSymbols
		}
		return calc, nil
	}
	if len(symbols) < 2 {
		calc.Reason = ReasonTooFewSymbols
		return calc, nil
	}
	sort.Strings(symbols)

	from := date.AddDate(0, 0, -e.durationDays)
	series := make(map[string]map[time.Time]float64, len(symbols))
	for _, symbol := range symbols {
		rs, err := e.logReturnSeries(ctx, symbol, from, date)
		if err != nil {
			return nil, err
		}
		series[symbol] = rs
	}

	var sum float64
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := symbols[i], symbols[j]
			xs, ys := alignedPairs(series[a], series[b])
			if len(xs) < e.minOverlap {
				calc.PairsSkipped++
				continue
			}
			pair := computePair(a, b, xs, ys)
			calc.Pairs = append(calc.Pairs, pair)
			sum += pair.Correlation
		}
	}

	if len(calc.Pairs) == 0 {
		calc.Reason = models.ReasonInsufficientHistory
		return calc, nil
	}

	calc.Available = true
	calc.AverageCorrelation = sum / float64(len(calc.Pairs))

	epc, err := e.effectivePositionCount(ctx, p, date)
	if err != nil {
		return nil, err
	}
	calc.EffectivePositionCount = epc

	return calc, nil
}

// computePair runs Pearson correlation and the two-tailed Student-t
// significance test over one set of paired observations. DataPoints and the
// test's degrees of freedom come from the same slice length.
func computePair(a, b string, xs, ys []float64) models.PairwiseCorrelation {
	n := len(xs)
	r := stat.Correlation(xs, ys, nil)

	pair := models.PairwiseCorrelation{
		SymbolA:     a,
		SymbolB:     b,
		Correlation: r,
		DataPoints:  n,
	}

	denom := 1 - r*r
	if denom <= 0 {
		// Perfectly (anti-)correlated series: infinitely significant.
		pair.TStatistic = math.Inf(int(math.Copysign(1, r)))
		pair.PValue = 0
		pair.Significant = true
		return pair
	}

	t := r * math.Sqrt(float64(n-2)/denom)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	p := 2 * (1 - dist.CDF(math.Abs(t)))

	pair.TStatistic = t
	pair.PValue = p
	pair.Significant = p < significanceLevel
	return pair
}

// effectivePositionCount is 1/Σw² over absolute market value weights of the
// priceable positions. A single-position book scores 1; equal weights over k
// positions score k.
func (e *Engine) effectivePositionCount(ctx context.Context, p *models.Portfolio, date time.Time) (float64, error) {
	var values []float64
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
			return 0, err
		}
		qty, _ := pos.Quantity.Abs().Float64()
		mult, _ := pos.Kind.Multiplier().Float64()
		mv := qty * bar.Close * mult
		values = append(values, mv)
		gross += mv
	}

	if gross == 0 {
		return 0, nil
	}

	var sumSq float64
	for _, mv := range values {
		w := mv / gross
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0, nil
	}
	return 1 / sumSq, nil
}

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

// logReturnSeries builds date-keyed log returns from consecutive cached
// closes in [from, to].
func (e *Engine) logReturnSeries(ctx context.Context, symbol string, from, to time.Time) (map[time.Time]float64, error) {
	bars, err := e.prices.GetSeries(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("get series %s: %w", symbol, err)
	}

	returns := make(map[time.Time]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 || bars[i].Close <= 0 {
			continue
		}
		returns[common.Day(bars[i].Date)] = math.Log(bars[i].Close / prev)
	}
	return returns, nil
}

func hasOnlyPrivatePositions(p *models.Portfolio) bool {
	sawPosition := false
	for _, pos := range p.Positions {
		if pos.Quantity.IsZero() {
			continue
		}
		sawPosition = true
		if !pos.Private {
			return false
		}
	}
	return sawPosition
}

// alignedPairs intersects the two series on date and returns the paired
// observations in chronological order.
func alignedPairs(aSeries, bSeries map[time.Time]float64) (xs, ys []float64) {
	var dates []time.Time
	for date := range aSeries {
		if _, ok := bSeries[date]; ok {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	xs = make([]float64, 0, len(dates))
	ys = make([]float64, 0, len(dates))
	for _, date := range dates {
		xs = append(xs, aSeries[date])
		ys = append(ys, bSeries[date])
	}
	return xs, ys
}
