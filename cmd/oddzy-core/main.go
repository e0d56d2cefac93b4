// Oddzy core - order lifecycle engine for a prediction-market platform.
//
// The core admits and cancels bets synchronously and runs four background
// loops: matching pairs compatible orders, the liquidity engine backstops
// aging orders that pass the event's band policy out of the platform
// reserve, the state worker moves
// events along scheduled → live → completed, and the resolver settles
// completed events.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AktharAzif/oddzy-core/internal/config"
	"github.com/AktharAzif/oddzy-core/internal/database"
	"github.com/AktharAzif/oddzy-core/internal/lifecycle"
	"github.com/AktharAzif/oddzy-core/internal/liquidity"
	"github.com/AktharAzif/oddzy-core/internal/matching"
	"github.com/AktharAzif/oddzy-core/internal/settlement"
	"github.com/AktharAzif/oddzy-core/internal/worker"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("oddzy core starting")

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matcher := matching.NewWorker(db, cfg.MatchConcurrency)
	liqEngine := liquidity.NewEngine(db, cfg.LiquidityMinAge)
	stateWorker := lifecycle.NewWorker(db)
	resolver := settlement.NewResolver(db)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		worker.Loop(ctx, "matching", cfg.MatchInterval, matcher.Run)
	}()
	go func() {
		defer wg.Done()
		worker.Loop(ctx, "liquidity", cfg.LiquidityInterval, liqEngine.Run)
	}()
	go func() {
		defer wg.Done()
		worker.Loop(ctx, "event-state", cfg.StateInterval, stateWorker.Run)
	}()
	go func() {
		defer wg.Done()
		worker.Loop(ctx, "resolver", cfg.ResolverInterval, resolver.Run)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()
	wg.Wait()
}
