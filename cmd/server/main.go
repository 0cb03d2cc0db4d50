package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/api"
	"github.com/trial-eligibility-server/internal/config"
	"github.com/trial-eligibility-server/internal/database"
	"github.com/trial-eligibility-server/internal/repository"
	"github.com/trial-eligibility-server/internal/service"
	"github.com/trial-eligibility-server/internal/trial"
	"github.com/trial-eligibility-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger := logrus.New()
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Connect to Postgres and run migrations
	dbConfig := database.ConfigFromDomain(cfg.Database)
	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(dbConfig.URL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := runner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// The Redis tier is optional. Eligibility checks fall back to the
	// in-process LRU and the repository when it is unreachable.
	opts := service.EligibilityServiceOptions{}
	if cfg.Cache.MemoryEnable {
		opts.MemoryItems = cfg.Cache.MemoryItems
	}
	cacheClient, err := external.NewCriteriaCacheClient(cfg.Cache)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without the shared criteria cache")
	} else {
		opts.Cache = cacheClient
		defer cacheClient.Close()
	}

	// External services behind circuit breakers
	extractor := external.NewResilientExtractor(
		external.NewExtractionClient(cfg.Extraction), logger)
	source := external.NewResilientClinicalSource(
		external.NewFHIRClient(cfg.Clinical), logger)

	criteriaRepo := repository.NewCriteriaRepository(db.Pool, logger)

	trials, err := trial.NewPostgresStoreFromURL(dbConfig.URL())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create trial store")
	}
	defer trials.Close()

	eligibility, err := service.NewEligibilityService(extractor, source, criteriaRepo, opts, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create eligibility service")
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting trial eligibility server")

	server := api.NewServer(cfg, eligibility, trials, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
