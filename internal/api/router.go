package api

import (
	"github.com/gin-gonic/gin"

	"dropflow/internal/api/handler"
	"dropflow/internal/api/middleware"
	"dropflow/internal/logger"
	"dropflow/internal/service"
)

// RouterConfig holds router-level configuration.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - importService: import orchestration service.
//   - promotionService: staging promotion service.
//   - log: base logger for the request middleware.
//   - cfg: router configuration.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(
	importService *service.ImportService,
	promotionService *service.PromotionService,
	log *logger.Logger,
	cfg RouterConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	importHandler := handler.NewImportHandler(importService)
	promotionHandler := handler.NewPromotionHandler(promotionService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Bulk imports
		v1.POST("/imports", importHandler.StartImport)
		v1.GET("/imports/:id", importHandler.GetStatus)
		v1.GET("/imports/:id/items", importHandler.GetItems)
		v1.POST("/imports/:id/retry", importHandler.RetryItems)

		// Promotion
		v1.POST("/products/promote/:staging_id", promotionHandler.Promote)
		v1.POST("/products/promote-batch", promotionHandler.PromoteBatch)
	}

	return r
}
