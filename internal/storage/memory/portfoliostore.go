package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// PortfolioStore is an in-memory implementation of interfaces.PortfolioStore.
type PortfolioStore struct {
	mu   sync.RWMutex
	data map[string]*models.Portfolio
}

// NewPortfolioStore creates a new in-memory portfolio store.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{data: make(map[string]*models.Portfolio)}
}

var _ interfaces.PortfolioStore = (*PortfolioStore)(nil)

func copyPortfolio(p *models.Portfolio) *models.Portfolio {
	pCopy := *p
	pCopy.Positions = make([]*models.Position, len(p.Positions))
	for i, pos := range p.Positions {
		posCopy := *pos
		pCopy.Positions[i] = &posCopy
	}
	return &pCopy
}

// Get retrieves a portfolio with its positions, or storage.ErrNotFound.
func (s *PortfolioStore) Get(_ context.Context, id string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPortfolio(p), nil
}

// List returns all portfolios ordered by ID.
func (s *PortfolioStore) List(_ context.Context) ([]*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Portfolio, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, copyPortfolio(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save upserts a portfolio and its positions.
func (s *PortfolioStore) Save(_ context.Context, p *models.Portfolio) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[p.ID] = copyPortfolio(p)
	return nil
}

// Delete removes a portfolio. Positions are owned rows and go with it.
func (s *PortfolioStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}
