package memory

import (
	"context"
	"sync"
	"time"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// BatchRunStore is an in-memory implementation of interfaces.BatchRunStore.
type BatchRunStore struct {
	mu   sync.RWMutex
	runs []*models.BatchRun
}

// NewBatchRunStore creates a new in-memory batch run store.
func NewBatchRunStore() *BatchRunStore {
	return &BatchRunStore{}
}

var _ interfaces.BatchRunStore = (*BatchRunStore)(nil)

// Record appends one batch run row.
func (s *BatchRunStore) Record(_ context.Context, run *models.BatchRun) error {
	if run == nil || run.JobType == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	runCopy := *run
	runCopy.Date = common.Day(run.Date)
	s.runs = append(s.runs, &runCopy)
	return nil
}

// LastSuccessfulDate returns the newest successfully processed date for a
// job type, or storage.ErrNotFound.
func (s *BatchRunStore) LastSuccessfulDate(_ context.Context, jobType string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, r := range s.runs {
		if r.JobType != jobType || !r.Success {
			continue
		}
		if !found || r.Date.After(latest) {
			latest = r.Date
			found = true
		}
	}
	if !found {
		return time.Time{}, storage.ErrNotFound
	}
	return latest, nil
}

// HasSuccessfulRun reports whether the job type completed for the date.
func (s *BatchRunStore) HasSuccessfulRun(_ context.Context, jobType string, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := common.Day(date)
	for _, r := range s.runs {
		if r.JobType == jobType && r.Success && r.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}
