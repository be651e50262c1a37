package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"downtime/db"
	qhttp "downtime/http"
	"downtime/logging"
	"downtime/monitoring"
	"downtime/pipeline"
	"downtime/registry"
	"downtime/service"
)

func main() {
	// 1. Load config
	configPath := findConfig()
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.resolvePaths(configPath)

	// 2. Logger
	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// 3. Initialize database
	store, err := db.Open(config.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 4. Model registry, reloading a previously trained artifact
	models := registry.New(config.Storage.ArtifactPath, logger.Named("registry"))
	if loaded, err := models.Load(); err != nil {
		logger.Warn("persisted artifact could not be loaded; train a new model", zap.Error(err))
	} else if !loaded {
		logger.Info("no trained model yet", zap.String("path", config.Storage.ArtifactPath))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := monitoring.NewHub(logger)
	go hub.Run(ctx)

	svcConfig := service.Config{Forest: config.forestConfig(), CacheSize: config.Cache.Size}
	svc, err := service.New(svcConfig, service.Deps{
		Snapshots: pipeline.NewSnapshotStore(config.Storage.DatasetPath),
		Registry:  models,
		Store:     store,
		Events:    hub,
		Metrics:   monitoring.NewMetricsCollector(),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to create service", zap.Error(err))
	}

	// 5. Pick up artifacts written by cmd/train_model
	if config.ML.WatchArtifact {
		watcher, err := models.NewWatcher(svc.ModelReloaded)
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	// 6. Start HTTP server
	server := qhttp.NewServer(config.HTTP, svc, hub, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("exiting")
}
