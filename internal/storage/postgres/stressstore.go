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

// StressStore implements interfaces.StressStore using PostgreSQL.
type StressStore struct {
	pool *Pool
}

// NewStressStore creates a new StressStore.
func NewStressStore(pool *Pool) *StressStore {
	return &StressStore{pool: pool}
}

var _ interfaces.StressStore = (*StressStore)(nil)

// SaveResults upserts scenario rows.
func (s *StressStore) SaveResults(ctx context.Context, results []*models.StressTestResult) error {
	query := `
		INSERT INTO stress_test_results (portfolio_id, date, scenario, estimated_pnl, estimated_pnl_pct)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (portfolio_id, date, scenario) DO UPDATE SET
			estimated_pnl = EXCLUDED.estimated_pnl,
			estimated_pnl_pct = EXCLUDED.estimated_pnl_pct
	`

	for _, r := range results {
		if r == nil || r.PortfolioID == "" {
			return storage.ErrInvalidInput
		}
		_, err := s.pool.Exec(ctx, query,
			r.PortfolioID, common.Day(r.Date), r.Scenario, r.EstimatedPnL, r.EstimatedPnLPct)
		if err != nil {
			return fmt.Errorf("save stress result %s: %w", r.Scenario, err)
		}
	}
	return nil
}

// Get retrieves all scenario results for a portfolio and date.
func (s *StressStore) Get(ctx context.Context, portfolioID string, date time.Time) ([]*models.StressTestResult, error) {
	query := `
		SELECT portfolio_id, date, scenario, estimated_pnl, estimated_pnl_pct, created_at
		FROM stress_test_results
		WHERE portfolio_id = $1 AND date = $2
		ORDER BY scenario ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID, common.Day(date))
	if err != nil {
		return nil, fmt.Errorf("get stress results: %w", err)
	}
	defer rows.Close()

	var results []*models.StressTestResult
	for rows.Next() {
		var r models.StressTestResult
		err := rows.Scan(&r.PortfolioID, &r.Date, &r.Scenario, &r.EstimatedPnL, &r.EstimatedPnLPct, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan stress result: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stress results: %w", err)
	}
	return results, nil
}
