package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"dropflow/internal/config"
	"dropflow/internal/logger"
	"dropflow/internal/offline"
	"dropflow/internal/repository"
	"dropflow/internal/service"
	"dropflow/internal/worker"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "dropflow-worker",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Drain processable items once and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if cfg.Processor.Endpoint == "" {
		appLogger.Fatal("processor.endpoint must be configured (PROCESSOR_ENDPOINT)")
	}

	// Initialize database (runs migrations when auto_migrate is set)
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewImportJobRepository(db)
	itemRepo := repository.NewImportItemRepository(db)

	// Initialize notifier
	var notifier service.Notifier = service.NewLogNotifier(appLogger)
	if cfg.Notify.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Notify.WebhookURL, appLogger)
	}

	// Initialize import service (no archive storage in the worker)
	importService := service.NewImportService(
		jobRepo,
		itemRepo,
		nil,
		notifier,
		appLogger,
		&service.ImportServiceConfig{
			MaxRetries: cfg.Import.MaxRetries,
		},
	)

	// Initialize item processor
	processor := worker.NewHTTPProcessor(&worker.HTTPProcessorConfig{
		Endpoint: cfg.Processor.Endpoint,
		Timeout:  cfg.Processor.Timeout,
	})

	// Initialize worker pool
	pool := worker.NewPool(itemRepo, importService, processor, appLogger, &worker.PoolConfig{
		Workers:      cfg.Import.Workers,
		BatchSize:    cfg.Import.BatchSize,
		PollInterval: cfg.Import.PollInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel on interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		appLogger.Info("Shutting down worker...")
		cancel()
	}()

	// Replay locally queued actions alongside item processing when a backend
	// endpoint is configured.
	if cfg.Offline.Endpoint != "" {
		queue := offline.NewQueue(
			offline.NewFileStore(cfg.Offline.Path),
			offline.NewHTTPDeliverer(cfg.Offline.Endpoint),
			notifier,
			appLogger,
			&offline.QueueConfig{MaxRetries: cfg.Offline.MaxRetries},
		)
		go queue.Run(ctx, cfg.Offline.SyncInterval)
	}

	if *once {
		processed, err := pool.RunOnce(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Drain pass failed")
		}
		appLogger.WithField(logger.FieldCount, processed).Info("Drain pass finished")
		return
	}

	appLogger.WithFields(logger.Fields{
		"workers":       cfg.Import.Workers,
		"poll_interval": cfg.Import.PollInterval.String(),
	}).Info("Starting import worker pool")

	pool.Run(ctx)
	appLogger.Info("Worker exited")
}
