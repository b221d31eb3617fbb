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

// StressStore is an in-memory implementation of interfaces.StressStore.
type StressStore struct {
	mu   sync.RWMutex
	data map[string][]*models.StressTestResult
}

// NewStressStore creates a new in-memory stress store.
func NewStressStore() *StressStore {
	return &StressStore{data: make(map[string][]*models.StressTestResult)}
}

var _ interfaces.StressStore = (*StressStore)(nil)

// SaveResults replaces the portfolio/date scenario set.
func (s *StressStore) SaveResults(_ context.Context, results []*models.StressTestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		if r == nil || r.PortfolioID == "" {
			return storage.ErrInvalidInput
		}
		key := priceKey(r.PortfolioID, r.Date)
		rCopy := *r
		rCopy.Date = common.Day(r.Date)

		replaced := false
		for i, existing := range s.data[key] {
			if existing.Scenario == r.Scenario {
				s.data[key][i] = &rCopy
				replaced = true
				break
			}
		}
		if !replaced {
			s.data[key] = append(s.data[key], &rCopy)
		}
	}
	return nil
}

// Get retrieves all scenario results for a portfolio and date.
func (s *StressStore) Get(_ context.Context, portfolioID string, date time.Time) ([]*models.StressTestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.data[priceKey(portfolioID, date)]
	out := make([]*models.StressTestResult, len(results))
	for i, r := range results {
		rCopy := *r
		out[i] = &rCopy
	}
	return out, nil
}
