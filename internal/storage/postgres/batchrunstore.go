package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// BatchRunStore implements interfaces.BatchRunStore using PostgreSQL.
type BatchRunStore struct {
	pool *Pool
}

// NewBatchRunStore creates a new BatchRunStore.
func NewBatchRunStore(pool *Pool) *BatchRunStore {
	return &BatchRunStore{pool: pool}
}

var _ interfaces.BatchRunStore = (*BatchRunStore)(nil)

// Record appends one batch run row.
func (s *BatchRunStore) Record(ctx context.Context, run *models.BatchRun) error {
	if run == nil || run.JobType == "" {
		return storage.ErrInvalidInput
	}
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	completedAt := run.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_runs (id, job_type, date, success, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, run.JobType, common.Day(run.Date), run.Success, completedAt)
	if err != nil {
		return fmt.Errorf("record batch run: %w", err)
	}
	return nil
}

// LastSuccessfulDate returns the newest successfully processed date for a
// job type, or storage.ErrNotFound.
func (s *BatchRunStore) LastSuccessfulDate(ctx context.Context, jobType string) (time.Time, error) {
	var date time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT date FROM batch_runs
		WHERE job_type = $1 AND success
		ORDER BY date DESC
		LIMIT 1
	`, jobType).Scan(&date)
	if err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get last successful date: %w", err)
	}
	return common.Day(date), nil
}

// HasSuccessfulRun reports whether the job type completed for the date.
func (s *BatchRunStore) HasSuccessfulRun(ctx context.Context, jobType string, date time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM batch_runs WHERE job_type = $1 AND date = $2 AND success
		)
	`, jobType, common.Day(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check batch run exists: %w", err)
	}
	return exists, nil
}
