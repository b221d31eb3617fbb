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

// SnapshotStore is an in-memory implementation of interfaces.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*models.PortfolioSnapshot // keyed by (portfolio_id, date)
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string]*models.PortfolioSnapshot)}
}

var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)

// Save upserts one snapshot row.
func (s *SnapshotStore) Save(_ context.Context, snap *models.PortfolioSnapshot) error {
	if snap == nil || snap.PortfolioID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapCopy := *snap
	snapCopy.Date = common.Day(snap.Date)
	s.data[priceKey(snap.PortfolioID, snap.Date)] = &snapCopy
	return nil
}

// Get retrieves one snapshot, or storage.ErrNotFound.
func (s *SnapshotStore) Get(_ context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[priceKey(portfolioID, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	snapCopy := *snap
	return &snapCopy, nil
}

// GetLatestBefore returns the most recent snapshot strictly before date.
// The search is unbounded: any existing prior snapshot wins over the seed
// equity fallback, however old it is.
func (s *SnapshotStore) GetLatestBefore(_ context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := common.Day(date)
	var latest *models.PortfolioSnapshot
	for _, snap := range s.data {
		if snap.PortfolioID != portfolioID || !snap.Date.Before(day) {
			continue
		}
		if latest == nil || snap.Date.After(latest.Date) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	latestCopy := *latest
	return &latestCopy, nil
}
