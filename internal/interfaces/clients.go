package interfaces

import (
	"context"

	"github.com/finertia/riskcore/internal/models"
)

// MarketDataClient is the capability interface implemented by every market
// data provider variant. The closed set of variants sits behind an explicit,
// ordered priority selector evaluated per call.
type MarketDataClient interface {
	// GetHistoricalPrices returns up to days of daily bars for symbol,
	// ordered by date ASC.
	GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error)

	// ValidateAPIKey verifies the configured credentials.
	ValidateAPIKey(ctx context.Context) error

	// ProviderInfo describes the provider and its quota regime.
	ProviderInfo() models.ProviderInfo
}
