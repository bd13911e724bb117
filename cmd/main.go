package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/api"
	"github.com/ksred/hoopstats/internal/config"
	"github.com/ksred/hoopstats/internal/database"
	"github.com/ksred/hoopstats/internal/migration"
	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/storage"
	"github.com/ksred/hoopstats/internal/utils"
)

const version = "v0.1.0"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info().Str("version", version).Msg("Starting hoopstats admin server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db := database.NewDatabase(cfg.Database)
	if err := db.Connect(cfg.Server.LogLevel); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	if err := db.Migrate(&models.SchemaChange{}, &models.MigrationLog{}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	store := storage.NewStore(db.DB())
	executor := migration.NewExecutor(store, migration.ExecutorConfig{
		BatchSize:      cfg.Migration.BatchSize,
		MaxWorkers:     cfg.Migration.MaxWorkers,
		EnableRollback: cfg.Migration.EnableRollback,
	}, logger)

	registry := migration.NewRegistry(logger)
	if err := migration.RegisterBuiltins(registry, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register migration functions")
	}

	server := api.NewServer(cfg, db, executor, registry, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	case err := <-serverErrChan:
		logger.Error().Err(err).Msg("Server error")
		cancel()
	}

	logger.Info().Msg("Shutdown complete")
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	logConfig := utils.LoggerConfig{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.Debug,
	}
	if cfg.Server.Debug {
		logConfig = utils.DevelopmentConfig()
	}
	return utils.NewLogger(logConfig)
}
