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

// CorrelationStore is an in-memory implementation of
// interfaces.CorrelationStore.
type CorrelationStore struct {
	mu   sync.RWMutex
	data map[string]*models.CorrelationCalculation
}

// NewCorrelationStore creates a new in-memory correlation store.
func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{data: make(map[string]*models.CorrelationCalculation)}
}

var _ interfaces.CorrelationStore = (*CorrelationStore)(nil)

// Save upserts one calculation with its pairs.
func (s *CorrelationStore) Save(_ context.Context, c *models.CorrelationCalculation) error {
	if c == nil || c.PortfolioID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cCopy := *c
	cCopy.Date = common.Day(c.Date)
	cCopy.Pairs = append([]models.PairwiseCorrelation(nil), c.Pairs...)
	s.data[priceKey(c.PortfolioID, c.Date)] = &cCopy
	return nil
}

// Get retrieves one calculation, or storage.ErrNotFound.
func (s *CorrelationStore) Get(_ context.Context, portfolioID string, date time.Time) (*models.CorrelationCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[priceKey(portfolioID, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cCopy := *c
	cCopy.Pairs = append([]models.PairwiseCorrelation(nil), c.Pairs...)
	return &cCopy, nil
}
