// Package memory provides in-memory implementations of the storage
// interfaces for unit tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
	"github.com/finertia/riskcore/internal/storage"
)

// PriceStore is an in-memory implementation of interfaces.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[string]*models.PriceBar // keyed by (symbol, date)
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{data: make(map[string]*models.PriceBar)}
}

var _ interfaces.PriceStore = (*PriceStore)(nil)

func priceKey(symbol string, date time.Time) string {
	return fmt.Sprintf("%s|%s", symbol, common.Day(date).Format("2006-01-02"))
}

// UpsertBars inserts or overwrites bars. Matches the Postgres
// ON CONFLICT DO UPDATE semantics: last writer wins.
func (s *PriceStore) UpsertBars(_ context.Context, bars []*models.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		if b == nil || b.Symbol == "" {
			return storage.ErrInvalidInput
		}
		barCopy := *b
		barCopy.Date = common.Day(b.Date)
		s.data[priceKey(b.Symbol, b.Date)] = &barCopy
	}
	return nil
}

// GetBar retrieves one bar, or storage.ErrNotFound.
func (s *PriceStore) GetBar(_ context.Context, symbol string, date time.Time) (*models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[priceKey(symbol, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	barCopy := *b
	return &barCopy, nil
}

// GetSeries returns bars in [from, to] inclusive, ordered by date ASC.
func (s *PriceStore) GetSeries(_ context.Context, symbol string, from, to time.Time) ([]*models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDay, toDay := common.Day(from), common.Day(to)
	var result []*models.PriceBar
	for _, b := range s.data {
		if b.Symbol != symbol {
			continue
		}
		if b.Date.Before(fromDay) || b.Date.After(toDay) {
			continue
		}
		barCopy := *b
		result = append(result, &barCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// GetLatestBarBefore searches backward from date (exclusive) within
// lookbackDays for the most recent available bar.
func (s *PriceStore) GetLatestBarBefore(_ context.Context, symbol string, date time.Time, lookbackDays int) (*models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := common.Day(date)
	floor := day.AddDate(0, 0, -lookbackDays)

	var latest *models.PriceBar
	for _, b := range s.data {
		if b.Symbol != symbol {
			continue
		}
		if !b.Date.Before(day) || b.Date.Before(floor) {
			continue
		}
		if latest == nil || b.Date.After(latest.Date) {
			latest = b
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	barCopy := *latest
	return &barCopy, nil
}
