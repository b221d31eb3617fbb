package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
)

// Selector tries providers in ascending priority order on every call and
// returns the first successful response. A provider failure (network error,
// bad status, exhausted daily quota) only moves the call to the next one;
// the error is returned to the caller only when every provider has failed.
type Selector struct {
	providers []interfaces.MarketDataClient
	logger    *common.Logger
}

// NewSelector creates a selector over the given providers, ordered by their
// ProviderInfo priority.
func NewSelector(logger *common.Logger, providers ...interfaces.MarketDataClient) *Selector {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	ordered := make([]interfaces.MarketDataClient, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ProviderInfo().Priority < ordered[j].ProviderInfo().Priority
	})
	return &Selector{providers: ordered, logger: logger}
}

var _ interfaces.MarketDataClient = (*Selector)(nil)

// GetHistoricalPrices fetches bars from the first provider that succeeds.
func (s *Selector) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error) {
	if len(s.providers) == 0 {
		return nil, errors.New("no market data providers configured")
	}

	var errs []error
	for _, p := range s.providers {
		info := p.ProviderInfo()
		bars, err := p.GetHistoricalPrices(ctx, symbol, days)
		if err == nil {
			return bars, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().
			Str("provider", info.Name).
			Str("symbol", symbol).
			Err(err).
			Msg("Provider failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", info.Name, err))
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", symbol, errors.Join(errs...))
}

// ValidateAPIKey succeeds if at least one provider has working credentials.
func (s *Selector) ValidateAPIKey(ctx context.Context) error {
	var errs []error
	for _, p := range s.providers {
		if err := p.ValidateAPIKey(ctx); err == nil {
			return nil
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", p.ProviderInfo().Name, err))
		}
	}
	if len(errs) == 0 {
		return errors.New("no market data providers configured")
	}
	return errors.Join(errs...)
}

// ProviderInfo reports the selector's primary provider.
func (s *Selector) ProviderInfo() models.ProviderInfo {
	if len(s.providers) == 0 {
		return models.ProviderInfo{Name: "none"}
	}
	return s.providers[0].ProviderInfo()
}
