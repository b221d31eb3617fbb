package memory

import (
	"github.com/finertia/riskcore/internal/interfaces"
)

// Manager bundles the in-memory stores behind interfaces.StorageManager.
type Manager struct {
	prices       *PriceStore
	metrics      *MetricsStore
	factors      *FactorStore
	portfolios   *PortfolioStore
	snapshots    *SnapshotStore
	correlations *CorrelationStore
	stress       *StressStore
	batchRuns    *BatchRunStore
}

// NewManager creates a storage manager with fresh in-memory stores.
func NewManager() *Manager {
	return &Manager{
		prices:       NewPriceStore(),
		metrics:      NewMetricsStore(),
		factors:      NewFactorStore(),
		portfolios:   NewPortfolioStore(),
		snapshots:    NewSnapshotStore(),
		correlations: NewCorrelationStore(),
		stress:       NewStressStore(),
		batchRuns:    NewBatchRunStore(),
	}
}

var _ interfaces.StorageManager = (*Manager)(nil)

func (m *Manager) PriceStore() interfaces.PriceStore             { return m.prices }
func (m *Manager) MetricsStore() interfaces.MetricsStore         { return m.metrics }
func (m *Manager) FactorStore() interfaces.FactorStore           { return m.factors }
func (m *Manager) PortfolioStore() interfaces.PortfolioStore     { return m.portfolios }
func (m *Manager) SnapshotStore() interfaces.SnapshotStore       { return m.snapshots }
func (m *Manager) CorrelationStore() interfaces.CorrelationStore { return m.correlations }
func (m *Manager) StressStore() interfaces.StressStore           { return m.stress }
func (m *Manager) BatchRunStore() interfaces.BatchRunStore       { return m.batchRuns }

// Close is a no-op for in-memory stores.
func (m *Manager) Close() error { return nil }
