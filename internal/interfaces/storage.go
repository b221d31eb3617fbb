// Package interfaces defines the service, client, and storage contracts for
// riskcore.
package interfaces

import (
	"context"
	"time"

	"github.com/finertia/riskcore/internal/models"
)

// StorageManager coordinates all storage backends.
type StorageManager interface {
	PriceStore() PriceStore
	MetricsStore() MetricsStore
	FactorStore() FactorStore
	PortfolioStore() PortfolioStore
	SnapshotStore() SnapshotStore
	CorrelationStore() CorrelationStore
	StressStore() StressStore
	BatchRunStore() BatchRunStore

	Close() error
}

// PriceStore is the durable (symbol, date) -> OHLCV cache. Writes are
// upserts that overwrite on conflict; the symbol batch is the only logical
// writer, everything downstream is read-only.
type PriceStore interface {
	UpsertBars(ctx context.Context, bars []*models.PriceBar) error
	GetBar(ctx context.Context, symbol string, date time.Time) (*models.PriceBar, error)
	// GetSeries returns bars for [from, to] inclusive, ordered by date ASC.
	GetSeries(ctx context.Context, symbol string, from, to time.Time) ([]*models.PriceBar, error)
	// GetLatestBarBefore searches backward from date (exclusive) within
	// lookbackDays for the most recent available bar.
	GetLatestBarBefore(ctx context.Context, symbol string, date time.Time, lookbackDays int) (*models.PriceBar, error)
}

// MetricsStore persists per-symbol per-day metrics.
type MetricsStore interface {
	Save(ctx context.Context, m *models.SymbolMetrics) error
	Get(ctx context.Context, symbol string, date time.Time) (*models.SymbolMetrics, error)
	Exists(ctx context.Context, symbol string, date time.Time) (bool, error)
}

// FactorStore persists symbol- and portfolio-level factor exposures.
type FactorStore interface {
	SaveExposures(ctx context.Context, exposures []*models.FactorExposure) error
	// GetSubjectExposures returns all factor rows for one subject and date.
	GetSubjectExposures(ctx context.Context, subjectType models.SubjectType, subject string, date time.Time) ([]*models.FactorExposure, error)
	// HasSymbolExposure reports whether any symbol-level factor row exists
	// for (symbol, date). Onboarding uses it to classify known symbols.
	HasSymbolExposure(ctx context.Context, symbol string, date time.Time) (bool, error)
}

// PortfolioStore reads and writes portfolios and their positions. Positions
// are reached by portfolio ID lookup, not object-graph back-references.
type PortfolioStore interface {
	Get(ctx context.Context, id string) (*models.Portfolio, error)
	List(ctx context.Context) ([]*models.Portfolio, error)
	Save(ctx context.Context, p *models.Portfolio) error
	Delete(ctx context.Context, id string) error
}

// SnapshotStore persists the append-only portfolio snapshot time series.
type SnapshotStore interface {
	Save(ctx context.Context, s *models.PortfolioSnapshot) error
	Get(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error)
	// GetLatestBefore returns the most recent snapshot strictly before date,
	// or storage.ErrNotFound when none exists at all.
	GetLatestBefore(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error)
}

// CorrelationStore persists portfolio correlation calculations.
type CorrelationStore interface {
	Save(ctx context.Context, c *models.CorrelationCalculation) error
	Get(ctx context.Context, portfolioID string, date time.Time) (*models.CorrelationCalculation, error)
}

// StressStore persists stress test results.
type StressStore interface {
	SaveResults(ctx context.Context, results []*models.StressTestResult) error
	Get(ctx context.Context, portfolioID string, date time.Time) ([]*models.StressTestResult, error)
}

// BatchRunStore records completed batch phases per trading date. Backfill
// discovery and the refresh wait gates read it.
type BatchRunStore interface {
	Record(ctx context.Context, run *models.BatchRun) error
	// LastSuccessfulDate returns the most recent successfully processed
	// date for a job type, or storage.ErrNotFound when there is none.
	LastSuccessfulDate(ctx context.Context, jobType string) (time.Time, error)
	// HasSuccessfulRun reports whether the job type completed for the date.
	HasSuccessfulRun(ctx context.Context, jobType string, date time.Time) (bool, error)
}
