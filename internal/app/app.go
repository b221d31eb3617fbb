// Package app wires configuration, storage, clients, and services into a
// runnable application. It is the shared core used by cmd/riskcore for both
// one-shot and daemon modes.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/finertia/riskcore/internal/clients/marketdata"
	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/services/correlation"
	"github.com/finertia/riskcore/internal/services/factors"
	"github.com/finertia/riskcore/internal/services/onboarding"
	"github.com/finertia/riskcore/internal/services/pnl"
	"github.com/finertia/riskcore/internal/services/refresh"
	"github.com/finertia/riskcore/internal/services/symbolbatch"
	"github.com/finertia/riskcore/internal/storage/postgres"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	Storage      interfaces.StorageManager
	MarketClient interfaces.MarketDataClient

	SymbolBatch interfaces.SymbolBatchService
	Refresh     interfaces.PortfolioRefreshService
	Onboarding  interfaces.OnboardingService

	StartupTime time.Time

	scheduler *Scheduler
}

// NewApp initializes configuration, storage, clients, and services.
// configPath may be empty, in which case RISKCORE_CONFIG and the default
// config locations are consulted.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	startupStart := time.Now()

	if configPath == "" {
		configPath = os.Getenv("RISKCORE_CONFIG")
	}

	config, err := common.LoadConfig(configPath, "config/riskcore.toml")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := postgres.NewManager(ctx, config.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	marketClient, err := buildMarketClient(config, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}

	factorEngine := factors.NewEngine(storageManager.PriceStore(), storageManager.FactorStore(), config.Batch, logger)
	pnlEngine := pnl.NewEngine(storageManager.PriceStore(), storageManager.SnapshotStore(), config.Batch, logger)
	corrEngine := correlation.NewEngine(storageManager.PriceStore(), config.Batch, logger)

	symbolBatch := symbolbatch.NewService(storageManager, marketClient, factorEngine, config.Batch, logger)
	refreshService := refresh.NewService(storageManager, pnlEngine, corrEngine, factorEngine, config.Batch, logger)
	onboardingService := onboarding.NewService(storageManager, symbolBatch, refreshService, logger)

	a := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storageManager,
		MarketClient: marketClient,
		SymbolBatch:  symbolBatch,
		Refresh:      refreshService,
		Onboarding:   onboardingService,
		StartupTime:  startupStart,
	}

	logger.Info().
		Str("environment", config.Environment).
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")
	return a, nil
}

// buildMarketClient assembles the provider priority chain from whichever
// providers have credentials configured.
func buildMarketClient(config *common.Config, logger *common.Logger) (interfaces.MarketDataClient, error) {
	var providers []interfaces.MarketDataClient

	if key := config.Clients.Tiingo.APIKey; key != "" {
		providers = append(providers, marketdata.NewTiingoClient(key,
			marketdata.WithTiingoBaseURL(config.Clients.Tiingo.BaseURL),
			marketdata.WithTiingoLogger(logger),
			marketdata.WithTiingoTimeout(config.Clients.Tiingo.GetTimeout()),
		))
	}
	if key := config.Clients.Polygon.APIKey; key != "" {
		providers = append(providers, marketdata.NewPolygonClient(key,
			marketdata.WithPolygonBaseURL(config.Clients.Polygon.BaseURL),
			marketdata.WithPolygonLogger(logger),
			marketdata.WithPolygonRateLimit(config.Clients.Polygon.RequestsPerMinute),
			marketdata.WithPolygonTimeout(config.Clients.Polygon.GetTimeout()),
		))
	}
	if key := config.Clients.AlphaVantage.APIKey; key != "" {
		providers = append(providers, marketdata.NewAlphaVantageClient(key,
			marketdata.WithAlphaVantageBaseURL(config.Clients.AlphaVantage.BaseURL),
			marketdata.WithAlphaVantageLogger(logger),
			marketdata.WithAlphaVantageDailyQuota(config.Clients.AlphaVantage.DailyQuota),
			marketdata.WithAlphaVantageTimeout(config.Clients.AlphaVantage.GetTimeout()),
		))
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no market data provider configured: set TIINGO_API_KEY, POLYGON_API_KEY, or ALPHAVANTAGE_API_KEY")
	}

	logger.Info().Int("providers", len(providers)).Msg("Market data provider chain assembled")
	return marketdata.NewSelector(logger, providers...), nil
}

// StartScheduler starts the nightly cron pipeline. No-op when already
// started.
func (a *App) StartScheduler() error {
	if a.scheduler != nil {
		return nil
	}
	s, err := NewScheduler(a, a.Logger)
	if err != nil {
		return err
	}
	a.scheduler = s
	a.scheduler.Start()
	return nil
}

// Close stops the scheduler and releases storage resources.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Storage close failed")
		}
	}
}
