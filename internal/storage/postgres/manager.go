package postgres

import (
	"context"
	"fmt"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
)

// Manager bundles the Postgres stores behind interfaces.StorageManager.
type Manager struct {
	pool         *Pool
	logger       *common.Logger
	prices       *PriceStore
	metrics      *MetricsStore
	factors      *FactorStore
	portfolios   *PortfolioStore
	snapshots    *SnapshotStore
	correlations *CorrelationStore
	stress       *StressStore
	batchRuns    *BatchRunStore
}

// NewManager connects to Postgres, optionally applies the schema, and wires
// all stores.
func NewManager(ctx context.Context, cfg common.DatabaseConfig, logger *common.Logger) (*Manager, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
	defer cancel()

	pool, err := NewPool(connectCtx, cfg.DSN, cfg.MaxConns)
	if err != nil {
		return nil, err
	}

	if cfg.ApplySchemaDDL {
		if err := ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
		logger.Debug().Msg("Schema bootstrap complete")
	}

	return &Manager{
		pool:         pool,
		logger:       logger,
		prices:       NewPriceStore(pool),
		metrics:      NewMetricsStore(pool),
		factors:      NewFactorStore(pool),
		portfolios:   NewPortfolioStore(pool),
		snapshots:    NewSnapshotStore(pool),
		correlations: NewCorrelationStore(pool),
		stress:       NewStressStore(pool),
		batchRuns:    NewBatchRunStore(pool),
	}, nil
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

// Close closes the connection pool.
func (m *Manager) Close() error {
	m.pool.Close()
	return nil
}
