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

// FactorStore is an in-memory implementation of interfaces.FactorStore.
type FactorStore struct {
	mu   sync.RWMutex
	data map[string]*models.FactorExposure
}

// NewFactorStore creates a new in-memory factor store.
func NewFactorStore() *FactorStore {
	return &FactorStore{data: make(map[string]*models.FactorExposure)}
}

var _ interfaces.FactorStore = (*FactorStore)(nil)

func exposureKey(e *models.FactorExposure) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		e.SubjectType, e.Subject, e.Factor,
		common.Day(e.Date).Format("2006-01-02"), e.WindowDays, e.WeightingScheme)
}

// SaveExposures upserts exposure rows.
func (s *FactorStore) SaveExposures(_ context.Context, exposures []*models.FactorExposure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range exposures {
		if e == nil || e.Subject == "" || e.Factor == "" {
			return storage.ErrInvalidInput
		}
		eCopy := *e
		eCopy.Date = common.Day(e.Date)
		s.data[exposureKey(e)] = &eCopy
	}
	return nil
}

// GetSubjectExposures returns all factor rows for one subject and date,
// ordered by factor name for deterministic output.
func (s *FactorStore) GetSubjectExposures(_ context.Context, subjectType models.SubjectType, subject string, date time.Time) ([]*models.FactorExposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := common.Day(date)
	var result []*models.FactorExposure
	for _, e := range s.data {
		if e.SubjectType == subjectType && e.Subject == subject && e.Date.Equal(day) {
			eCopy := *e
			result = append(result, &eCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Factor != result[j].Factor {
			return result[i].Factor < result[j].Factor
		}
		return result[i].WeightingScheme < result[j].WeightingScheme
	})
	return result, nil
}

// HasSymbolExposure reports whether any symbol-level factor row exists for
// (symbol, date).
func (s *FactorStore) HasSymbolExposure(_ context.Context, symbol string, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := common.Day(date)
	for _, e := range s.data {
		if e.SubjectType == models.SubjectSymbol && e.Subject == symbol && e.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}
