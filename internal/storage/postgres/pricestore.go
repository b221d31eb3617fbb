package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// PriceStore implements interfaces.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

var _ interfaces.PriceStore = (*PriceStore)(nil)

// UpsertBars writes bars with overwrite-on-conflict semantics so concurrent
// writers and retried fetches are tolerated.
func (s *PriceStore) UpsertBars(ctx context.Context, bars []*models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_bars (symbol, date, open, high, low, close, volume, data_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			data_source = EXCLUDED.data_source
	`

	for _, b := range bars {
		if b == nil || b.Symbol == "" {
			return storage.ErrInvalidInput
		}
		_, err := s.pool.Exec(ctx, query,
			b.Symbol, common.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, b.DataSource)
		if err != nil {
			return fmt.Errorf("upsert price bar %s %s: %w", b.Symbol, b.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

const priceBarColumns = "symbol, date, open, high, low, close, volume, data_source"

// GetBar retrieves one bar, or storage.ErrNotFound.
func (s *PriceStore) GetBar(ctx context.Context, symbol string, date time.Time) (*models.PriceBar, error) {
	query := `SELECT ` + priceBarColumns + ` FROM price_bars WHERE symbol = $1 AND date = $2`

	var b models.PriceBar
	err := s.pool.QueryRow(ctx, query, symbol, common.Day(date)).Scan(
		&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.DataSource)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get price bar: %w", err)
	}
	return &b, nil
}

// GetSeries returns bars in [from, to] inclusive, ordered by date ASC.
func (s *PriceStore) GetSeries(ctx context.Context, symbol string, from, to time.Time) ([]*models.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM price_bars
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, common.Day(from), common.Day(to))
	if err != nil {
		return nil, fmt.Errorf("get price series: %w", err)
	}
	defer rows.Close()

	var bars []*models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.DataSource); err != nil {
			return nil, fmt.Errorf("scan price bar: %w", err)
		}
		bars = append(bars, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bars: %w", err)
	}
	return bars, nil
}

// GetLatestBarBefore searches backward from date (exclusive) within
// lookbackDays for the most recent available bar.
func (s *PriceStore) GetLatestBarBefore(ctx context.Context, symbol string, date time.Time, lookbackDays int) (*models.PriceBar, error) {
	day := common.Day(date)
	floor := day.AddDate(0, 0, -lookbackDays)

	query := `
		SELECT ` + priceBarColumns + `
		FROM price_bars
		WHERE symbol = $1 AND date < $2 AND date >= $3
		ORDER BY date DESC
		LIMIT 1
	`

	var b models.PriceBar
	err := s.pool.QueryRow(ctx, query, symbol, day, floor).Scan(
		&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.DataSource)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest bar before: %w", err)
	}
	return &b, nil
}
