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

// FactorStore implements interfaces.FactorStore using PostgreSQL.
type FactorStore struct {
	pool *Pool
}

// NewFactorStore creates a new FactorStore.
func NewFactorStore(pool *Pool) *FactorStore {
	return &FactorStore{pool: pool}
}

var _ interfaces.FactorStore = (*FactorStore)(nil)

// SaveExposures upserts exposure rows.
func (s *FactorStore) SaveExposures(ctx context.Context, exposures []*models.FactorExposure) error {
	if len(exposures) == 0 {
		return nil
	}

	query := `
		INSERT INTO factor_exposures (
			subject_type, subject, factor, date, window_days, weighting_scheme,
			beta, dollar_exposure, r_squared, window_start, window_end, observations
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (subject_type, subject, factor, date, window_days, weighting_scheme)
		DO UPDATE SET
			beta = EXCLUDED.beta,
			dollar_exposure = EXCLUDED.dollar_exposure,
			r_squared = EXCLUDED.r_squared,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			observations = EXCLUDED.observations
	`

	for _, e := range exposures {
		if e == nil || e.Subject == "" || e.Factor == "" {
			return storage.ErrInvalidInput
		}
		var windowStart, windowEnd *time.Time
		if !e.WindowStart.IsZero() {
			ws := common.Day(e.WindowStart)
			windowStart = &ws
		}
		if !e.WindowEnd.IsZero() {
			we := common.Day(e.WindowEnd)
			windowEnd = &we
		}
		_, err := s.pool.Exec(ctx, query,
			string(e.SubjectType), e.Subject, string(e.Factor), common.Day(e.Date),
			e.WindowDays, e.WeightingScheme,
			e.Beta, e.DollarExposure, e.RSquared, windowStart, windowEnd, e.Observations)
		if err != nil {
			return fmt.Errorf("save factor exposure %s/%s: %w", e.Subject, e.Factor, err)
		}
	}
	return nil
}

// GetSubjectExposures returns all factor rows for one subject and date.
func (s *FactorStore) GetSubjectExposures(ctx context.Context, subjectType models.SubjectType, subject string, date time.Time) ([]*models.FactorExposure, error) {
	query := `
		SELECT subject_type, subject, factor, date, window_days, weighting_scheme,
			beta, dollar_exposure, r_squared, window_start, window_end, observations, created_at
		FROM factor_exposures
		WHERE subject_type = $1 AND subject = $2 AND date = $3
		ORDER BY factor ASC, weighting_scheme ASC
	`

	rows, err := s.pool.Query(ctx, query, string(subjectType), subject, common.Day(date))
	if err != nil {
		return nil, fmt.Errorf("get subject exposures: %w", err)
	}
	defer rows.Close()

	var exposures []*models.FactorExposure
	for rows.Next() {
		var e models.FactorExposure
		var subjectTypeStr, factorStr string
		var windowStart, windowEnd *time.Time
		err := rows.Scan(
			&subjectTypeStr, &e.Subject, &factorStr, &e.Date, &e.WindowDays, &e.WeightingScheme,
			&e.Beta, &e.DollarExposure, &e.RSquared, &windowStart, &windowEnd, &e.Observations, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan factor exposure: %w", err)
		}
		e.SubjectType = models.SubjectType(subjectTypeStr)
		e.Factor = models.Factor(factorStr)
		if windowStart != nil {
			e.WindowStart = *windowStart
		}
		if windowEnd != nil {
			e.WindowEnd = *windowEnd
		}
		exposures = append(exposures, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factor exposures: %w", err)
	}
	return exposures, nil
}

// HasSymbolExposure reports whether any symbol-level factor row exists for
// (symbol, date).
func (s *FactorStore) HasSymbolExposure(ctx context.Context, symbol string, date time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM factor_exposures
			WHERE subject_type = $1 AND subject = $2 AND date = $3
		)
	`

	var exists bool
	err := s.pool.QueryRow(ctx, query, string(models.SubjectSymbol), symbol, common.Day(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check symbol exposure exists: %w", err)
	}
	return exists, nil
}
