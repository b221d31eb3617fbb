// riskcore runs the portfolio risk analytics pipeline, either as a one-shot
// batch command or as a daemon driven by the cron schedule.
//
// Usage:
//
//	riskcore -daemon                          run the nightly scheduler
//	riskcore -symbol-batch [-backfill] [-force] [-date 2026-08-21]
//	riskcore -refresh [-date 2026-08-21] [-portfolio ID]
//	riskcore -onboard PORTFOLIO_ID [-date 2026-08-21]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finertia/riskcore/internal/app"
	"github.com/finertia/riskcore/internal/interfaces"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: RISKCORE_CONFIG, then config/riskcore.toml)")
		daemon      = flag.Bool("daemon", false, "run the cron scheduler")
		symbolBatch = flag.Bool("symbol-batch", false, "run the symbol batch once")
		refreshRun  = flag.Bool("refresh", false, "run the portfolio refresh once")
		onboardID   = flag.String("onboard", "", "onboard the given portfolio ID")
		dateStr     = flag.String("date", "", "target trading date (YYYY-MM-DD, default: most recent trading day)")
		backfill    = flag.Bool("backfill", false, "symbol batch: also process missed dates")
		force       = flag.Bool("force", false, "symbol batch: recompute cached symbols")
		portfolioID = flag.String("portfolio", "", "refresh: restrict to one portfolio ID")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	var targetDate time.Time
	if *dateStr != "" {
		targetDate, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -date %q: %v\n", *dateStr, err)
			os.Exit(2)
		}
	}

	switch {
	case *daemon:
		runDaemon(ctx, a)

	case *symbolBatch:
		result, err := a.SymbolBatch.Run(ctx, interfaces.SymbolBatchOptions{
			TargetDate: targetDate,
			Backfill:   *backfill,
			Force:      *force,
		})
		exit(a, result, err)

	case *refreshRun:
		opts := interfaces.RefreshOptions{TargetDate: targetDate}
		if *portfolioID != "" {
			opts.PortfolioIDs = []string{*portfolioID}
		}
		result, err := a.Refresh.Run(ctx, opts)
		exit(a, result, err)

	case *onboardID != "":
		result, err := a.Onboarding.OnboardPortfolio(ctx, *onboardID, targetDate)
		exit(a, result, err)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runDaemon(ctx context.Context, a *app.App) {
	if err := a.StartScheduler(); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}
	a.Logger.Info().Msg("Daemon ready")

	<-ctx.Done()
	a.Logger.Info().Msg("Shutdown signal received")
}

// exit prints the run result as JSON and terminates with a meaningful code.
func exit(a *app.App, result interface{}, err error) {
	if result != nil {
		if data, jsonErr := json.MarshalIndent(result, "", "  "); jsonErr == nil {
			fmt.Println(string(data))
		}
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("Run failed")
		a.Close()
		os.Exit(1)
	}
}
