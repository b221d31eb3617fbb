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

// MetricsStore implements interfaces.MetricsStore using PostgreSQL.
type MetricsStore struct {
	pool *Pool
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(pool *Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

var _ interfaces.MetricsStore = (*MetricsStore)(nil)

// Save upserts one metrics row. The symbol batch only calls this for new or
// forced rows, so overwrite-on-conflict keeps retries idempotent.
func (s *MetricsStore) Save(ctx context.Context, m *models.SymbolMetrics) error {
	if m == nil || m.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO symbol_metrics (
			symbol, date, close, return_1d, return_mtd, return_ytd,
			return_1m, return_3m, return_1y, data_quality_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol, date) DO UPDATE SET
			close = EXCLUDED.close,
			return_1d = EXCLUDED.return_1d,
			return_mtd = EXCLUDED.return_mtd,
			return_ytd = EXCLUDED.return_ytd,
			return_1m = EXCLUDED.return_1m,
			return_3m = EXCLUDED.return_3m,
			return_1y = EXCLUDED.return_1y,
			data_quality_score = EXCLUDED.data_quality_score
	`

	_, err := s.pool.Exec(ctx, query,
		m.Symbol, common.Day(m.Date), m.Close,
		m.Return1D, m.ReturnMTD, m.ReturnYTD,
		m.Return1M, m.Return3M, m.Return1Y,
		m.DataQualityScore)
	if err != nil {
		return fmt.Errorf("save symbol metrics: %w", err)
	}
	return nil
}

// Get retrieves one metrics row, or storage.ErrNotFound.
func (s *MetricsStore) Get(ctx context.Context, symbol string, date time.Time) (*models.SymbolMetrics, error) {
	query := `
		SELECT symbol, date, close, return_1d, return_mtd, return_ytd,
			return_1m, return_3m, return_1y, data_quality_score, created_at
		FROM symbol_metrics
		WHERE symbol = $1 AND date = $2
	`

	var m models.SymbolMetrics
	err := s.pool.QueryRow(ctx, query, symbol, common.Day(date)).Scan(
		&m.Symbol, &m.Date, &m.Close,
		&m.Return1D, &m.ReturnMTD, &m.ReturnYTD,
		&m.Return1M, &m.Return3M, &m.Return1Y,
		&m.DataQualityScore, &m.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get symbol metrics: %w", err)
	}
	return &m, nil
}

// Exists reports whether a metrics row exists for (symbol, date).
func (s *MetricsStore) Exists(ctx context.Context, symbol string, date time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM symbol_metrics WHERE symbol = $1 AND date = $2)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, symbol, common.Day(date)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check symbol metrics exists: %w", err)
	}
	return exists, nil
}
