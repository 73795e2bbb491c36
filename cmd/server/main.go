// Package main provides the API server entry point for the ETF holdings
// tracker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/buggu-git/taiwan-tools/internal/api"
	"github.com/buggu-git/taiwan-tools/internal/config"
	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/service"
	"github.com/buggu-git/taiwan-tools/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("etf holdings tracker starting")

	postgres, err := storage.NewPostgresDB(&cfg.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var redisCache *storage.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = storage.NewRedisCache(&cfg.Redis)
		if err != nil {
			// The cache is optional; run uncached rather than refusing to start.
			logger.WithError(err).Warn("Redis unavailable, running without read cache")
			redisCache = nil
		} else {
			defer redisCache.Close() // nolint:errcheck // shutdown path
		}
	}

	logger.Info("database connections established")

	etfRepo := storage.NewETFRepository(postgres)
	holdingRepo := storage.NewHoldingRepository(postgres)
	changeRepo := storage.NewChangeRepository(postgres)
	runRepo := storage.NewScrapeRunRepository(postgres)

	cache := storage.NewSnapshotCache(redisCache, holdingRepo, etfRepo, cfg.Cache.TTL, logger)

	detector := service.NewChangeDetector(holdingRepo, changeRepo, logger)
	runTracker := service.NewRunTracker(runRepo)
	registry := service.NewRegistryService(etfRepo, cache, logger)
	ingestor := service.NewIngestService(etfRepo, holdingRepo, detector, runTracker, cache, logger)

	server := api.NewServer(
		&api.ServerConfig{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			ShutdownTimeout:   cfg.Server.ShutdownTimeout,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		registry,
		ingestor,
		detector,
		cache,
		changeRepo,
		runTracker,
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("server failed")
		}
		return
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info("server stopped")
}
