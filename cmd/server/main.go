// Package main is the entry point for the ballast portfolio optimization
// engine. The service exposes mean-variance optimization, efficient frontier
// generation, and portfolio risk metrics over a REST API, with results cached
// in a local SQLite database and lifecycle events streamed to clients over
// SSE.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/events"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/internal/modules/optimization"
	"github.com/aristath/ballast/internal/modules/risk"
	"github.com/aristath/ballast/internal/scheduler"
	"github.com/aristath/ballast/internal/server"
	"github.com/aristath/ballast/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting ballast")

	// Calculations cache database. Results are content-addressed, so losing
	// this file only costs recomputation.
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to create data directory")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open calculations database")
	}
	defer db.Close()

	cache, err := calculations.NewCache(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calculations cache")
	}

	// Event bus feeds every subscriber, including the SSE stream handler.
	bus := events.NewBus(log)
	eventManager := events.NewManager(bus, log)

	// Engine defaults come from configuration; requests may override any of
	// them per call.
	defaults := optimization.Options{
		LookbackPeriod:       cfg.LookbackPeriod,
		TradingDaysPerYear:   cfg.TradingDaysPerYear,
		RiskFreeRate:         cfg.RiskFreeRate,
		L2Regularization:     cfg.L2Regularization,
		MaxIterations:        cfg.MaxIterations,
		ConvergenceThreshold: cfg.ConvergenceThreshold,
		FrontierPoints:       cfg.FrontierPoints,
		FrontierWorkers:      cfg.FrontierWorkers,
	}

	optimizer := optimization.NewOptimizer(cache, eventManager, defaults, log)
	riskCalculator := risk.NewMetricsCalculator(cache, eventManager, defaults, log)

	// Background jobs: hourly cache maintenance, daily frontier warmup for
	// the configured watchlists.
	sched := scheduler.New(eventManager, log)

	maintenanceJob := scheduler.NewCacheMaintenanceJob(cache, db, eventManager, log)
	if err := sched.AddJob("0 0 * * * *", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule cache maintenance")
	}

	warmupJob := scheduler.NewFrontierWarmupJob(optimizer, cfg.WatchlistDir, cfg.FrontierWorkers, log)
	if err := sched.AddJob("0 15 6 * * *", warmupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule frontier warmup")
	}

	sched.Start()
	log.Info().Msg("Scheduler started")

	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		DB:           db,
		Cache:        cache,
		EventBus:     bus,
		EventManager: eventManager,
		Optimization: optimization.NewHandler(optimizer, log),
		Risk:         risk.NewHandler(riskCalculator, log),
	})

	// Start server in goroutine so shutdown handling below can run
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop accepting new job runs before draining HTTP connections. Stop
	// blocks until in-flight jobs finish.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush the WAL so the next start reads a compact database.
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
