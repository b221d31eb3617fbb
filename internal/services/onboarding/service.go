// Package onboarding implements the fast-path for a newly added portfolio:
// classify its symbols against the cache, batch-process only the unknown
// ones, then run a refresh scoped to the single portfolio.
package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
)

// Service is the onboarding fast-path processor.
type Service struct {
	store       interfaces.StorageManager
	symbolBatch interfaces.SymbolBatchService
	refresh     interfaces.PortfolioRefreshService
	logger      *common.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates an onboarding service.
func NewService(store interfaces.StorageManager, symbolBatch interfaces.SymbolBatchService, refresh interfaces.PortfolioRefreshService, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:       store,
		symbolBatch: symbolBatch,
		refresh:     refresh,
		logger:      logger,
		now:         time.Now,
	}
}

var _ interfaces.OnboardingService = (*Service)(nil)

// OnboardPortfolio brings one portfolio fully up to date for the date.
// Symbols that already have factor exposures are reused as-is; only the
// unknown remainder goes through the symbol batch, which is what keeps
// onboarding fast for portfolios full of widely held names.
func (s *Service) OnboardPortfolio(ctx context.Context, portfolioID string, date time.Time) (*models.OnboardingResult, error) {
	started := s.now()

	if date.IsZero() {
		date = s.now().UTC()
	}
	date = common.MostRecentTradingDay(date)

	p, err := s.store.PortfolioStore().Get(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", portfolioID, err)
	}

	result := &models.OnboardingResult{
		PortfolioID: portfolioID,
		Date:        date,
	}

	for _, symbol := range p.ActiveSymbols() {
		known, err := s.store.FactorStore().HasSymbolExposure(ctx, symbol, date)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", symbol, err)
		}
		if known {
			result.KnownSymbols = append(result.KnownSymbols, symbol)
		} else {
			result.UnknownSymbols = append(result.UnknownSymbols, symbol)
		}
	}

	s.logger.Info().
		Str("portfolio", portfolioID).
		Str("date", date.Format("2006-01-02")).
		Int("known", len(result.KnownSymbols)).
		Int("unknown", len(result.UnknownSymbols)).
		Msg("Onboarding portfolio")

	if len(result.UnknownSymbols) > 0 {
		batchResult, err := s.symbolBatch.Run(ctx, interfaces.SymbolBatchOptions{
			TargetDate: date,
			Symbols:    result.UnknownSymbols,
		})
		if err != nil {
			return nil, fmt.Errorf("scoped symbol batch: %w", err)
		}
		result.SymbolProcessing = batchResult
	}

	refreshResult, err := s.refresh.Run(ctx, interfaces.RefreshOptions{
		TargetDate:   date,
		PortfolioIDs: []string{portfolioID},
	})
	if err != nil {
		return nil, fmt.Errorf("scoped refresh: %w", err)
	}
	result.PortfolioRefresh = refreshResult

	s.recordRun(ctx, date)

	result.Duration = s.now().Sub(started)
	return result, nil
}

func (s *Service) recordRun(ctx context.Context, date time.Time) {
	run := &models.BatchRun{
		ID:          uuid.NewString(),
		JobType:     models.JobTypeOnboarding,
		Date:        date,
		Success:     true,
		CompletedAt: s.now().UTC(),
	}
	if err := s.store.BatchRunStore().Record(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record onboarding run")
	}
}
