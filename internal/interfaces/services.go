package interfaces

import (
	"context"
	"time"

	"github.com/finertia/riskcore/internal/models"
)

// SymbolBatchService runs the per-symbol computation phase.
type SymbolBatchService interface {
	// Run processes one or more trading dates, oldest to newest. A nil
	// result is never returned: partial failures are itemized inside it.
	Run(ctx context.Context, opts SymbolBatchOptions) (*models.SymbolBatchResult, error)
}

// SymbolBatchOptions configures a symbol batch run.
type SymbolBatchOptions struct {
	// TargetDate defaults to the most recent trading day.
	TargetDate time.Time
	// Backfill also processes missed trading days since the last
	// successful run, in strict chronological order.
	Backfill bool
	// Force recomputes symbols that already have cached entries.
	Force bool
	// Symbols restricts the universe to the given symbols (plus factor
	// proxies). Empty means the full active universe. Used by onboarding.
	Symbols []string
}

// PortfolioRefreshService runs the per-portfolio computation phase.
type PortfolioRefreshService interface {
	Run(ctx context.Context, opts RefreshOptions) (*models.PortfolioRefreshResult, error)
}

// RefreshOptions configures a portfolio refresh run.
type RefreshOptions struct {
	// TargetDate defaults to the most recent trading day.
	TargetDate time.Time
	// WaitForSymbolBatch blocks until the symbol batch completed for the
	// target date. Manual reruns pass false to skip the gate.
	WaitForSymbolBatch bool
	// WaitForOnboarding blocks until any onboarding run for the target
	// date completed.
	WaitForOnboarding bool
	// PortfolioIDs restricts the run to the given portfolios. Empty means
	// all portfolios.
	PortfolioIDs []string
}

// OnboardingService is the scoped fast-path for a newly added portfolio.
type OnboardingService interface {
	OnboardPortfolio(ctx context.Context, portfolioID string, date time.Time) (*models.OnboardingResult, error)
}
