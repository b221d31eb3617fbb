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

// MetricsStore is an in-memory implementation of interfaces.MetricsStore.
type MetricsStore struct {
	mu   sync.RWMutex
	data map[string]*models.SymbolMetrics
}

// NewMetricsStore creates a new in-memory metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{data: make(map[string]*models.SymbolMetrics)}
}

var _ interfaces.MetricsStore = (*MetricsStore)(nil)

// Save upserts one metrics row.
func (s *MetricsStore) Save(_ context.Context, m *models.SymbolMetrics) error {
	if m == nil || m.Symbol == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mCopy := *m
	mCopy.Date = common.Day(m.Date)
	s.data[priceKey(m.Symbol, m.Date)] = &mCopy
	return nil
}

// Get retrieves one metrics row, or storage.ErrNotFound.
func (s *MetricsStore) Get(_ context.Context, symbol string, date time.Time) (*models.SymbolMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[priceKey(symbol, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	mCopy := *m
	return &mCopy, nil
}

// Exists reports whether a metrics row exists for (symbol, date).
func (s *MetricsStore) Exists(_ context.Context, symbol string, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[priceKey(symbol, date)]
	return ok, nil
}
