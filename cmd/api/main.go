package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dropflow/internal/api"
	"dropflow/internal/api/middleware"
	"dropflow/internal/config"
	"dropflow/internal/logger"
	"dropflow/internal/repository"
	"dropflow/internal/service"
	"dropflow/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database (runs migrations when auto_migrate is set)
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewImportJobRepository(db)
	itemRepo := repository.NewImportItemRepository(db)
	stagingRepo := repository.NewStagingProductRepository(db)
	productRepo := repository.NewProductRepository(db)

	// Initialize raw-batch archive storage (optional, supports MinIO, R2, S3)
	var archiveStorage storage.ObjectStorage
	if cfg.Archive.Enabled {
		archiveStorage, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Archive.Type),
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			PublicURL: cfg.Archive.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		if be, ok := archiveStorage.(interface{ EnsureBucket(context.Context) error }); ok {
			if err := be.EnsureBucket(context.Background()); err != nil {
				appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
			}
		}
	}

	// Initialize notifier
	var notifier service.Notifier = service.NewLogNotifier(appLogger)
	if cfg.Notify.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Notify.WebhookURL, appLogger)
	}

	// Initialize services
	importService := service.NewImportService(
		jobRepo,
		itemRepo,
		archiveStorage,
		notifier,
		appLogger,
		&service.ImportServiceConfig{
			MaxRetries: cfg.Import.MaxRetries,
		},
	)

	promotionService := service.NewPromotionService(
		stagingRepo,
		productRepo,
		appLogger,
		&service.PromotionConfig{
			DefaultMarkup: cfg.Promotion.DefaultMarkup,
		},
	)

	// Setup router
	router := api.SetupRouter(importService, promotionService, appLogger, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
