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

// CorrelationStore implements interfaces.CorrelationStore using PostgreSQL.
// The header row and its pair rows are written in one transaction so a
// partially persisted matrix is never observable.
type CorrelationStore struct {
	pool *Pool
}

// NewCorrelationStore creates a new CorrelationStore.
func NewCorrelationStore(pool *Pool) *CorrelationStore {
	return &CorrelationStore{pool: pool}
}

var _ interfaces.CorrelationStore = (*CorrelationStore)(nil)

// Save upserts the calculation header and replaces its pair rows.
func (s *CorrelationStore) Save(ctx context.Context, c *models.CorrelationCalculation) error {
	if c == nil || c.PortfolioID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save correlation: %w", err)
	}
	defer tx.Rollback(ctx)

	day := common.Day(c.Date)

	_, err = tx.Exec(ctx, `
		INSERT INTO correlation_calculations (
			id, portfolio_id, date, available, reason, duration_days, min_overlap,
			pairs_skipped, average_correlation, effective_position_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (portfolio_id, date) DO UPDATE SET
			id = EXCLUDED.id,
			available = EXCLUDED.available,
			reason = EXCLUDED.reason,
			duration_days = EXCLUDED.duration_days,
			min_overlap = EXCLUDED.min_overlap,
			pairs_skipped = EXCLUDED.pairs_skipped,
			average_correlation = EXCLUDED.average_correlation,
			effective_position_count = EXCLUDED.effective_position_count
	`, c.ID, c.PortfolioID, day, c.Available, c.Reason, c.DurationDays, c.MinOverlap,
		c.PairsSkipped, c.AverageCorrelation, c.EffectivePositionCount)
	if err != nil {
		return fmt.Errorf("upsert correlation calculation: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM pairwise_correlations WHERE portfolio_id = $1 AND date = $2`,
		c.PortfolioID, day)
	if err != nil {
		return fmt.Errorf("clear pairwise correlations: %w", err)
	}

	for _, pair := range c.Pairs {
		_, err := tx.Exec(ctx, `
			INSERT INTO pairwise_correlations (
				portfolio_id, date, symbol_a, symbol_b,
				correlation, data_points, t_statistic, p_value, significant
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, c.PortfolioID, day, pair.SymbolA, pair.SymbolB,
			pair.Correlation, pair.DataPoints, pair.TStatistic, pair.PValue, pair.Significant)
		if err != nil {
			return fmt.Errorf("insert pairwise correlation %s/%s: %w", pair.SymbolA, pair.SymbolB, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save correlation: %w", err)
	}
	return nil
}

// Get retrieves one calculation with its pairs, or storage.ErrNotFound.
func (s *CorrelationStore) Get(ctx context.Context, portfolioID string, date time.Time) (*models.CorrelationCalculation, error) {
	day := common.Day(date)

	var c models.CorrelationCalculation
	err := s.pool.QueryRow(ctx, `
		SELECT id, portfolio_id, date, available, reason, duration_days, min_overlap,
			pairs_skipped, average_correlation, effective_position_count, created_at
		FROM correlation_calculations
		WHERE portfolio_id = $1 AND date = $2
	`, portfolioID, day).Scan(
		&c.ID, &c.PortfolioID, &c.Date, &c.Available, &c.Reason, &c.DurationDays, &c.MinOverlap,
		&c.PairsSkipped, &c.AverageCorrelation, &c.EffectivePositionCount, &c.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get correlation calculation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT symbol_a, symbol_b, correlation, data_points, t_statistic, p_value, significant
		FROM pairwise_correlations
		WHERE portfolio_id = $1 AND date = $2
		ORDER BY symbol_a ASC, symbol_b ASC
	`, portfolioID, day)
	if err != nil {
		return nil, fmt.Errorf("get pairwise correlations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pair models.PairwiseCorrelation
		err := rows.Scan(&pair.SymbolA, &pair.SymbolB, &pair.Correlation,
			&pair.DataPoints, &pair.TStatistic, &pair.PValue, &pair.Significant)
		if err != nil {
			return nil, fmt.Errorf("scan pairwise correlation: %w", err)
		}
		c.Pairs = append(c.Pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairwise correlations: %w", err)
	}
	return &c, nil
}
