// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"recuento/internal/domain/auth"
	"recuento/internal/domain/catalog"
	"recuento/internal/domain/counting"
	"recuento/internal/domain/warehouse"
	"recuento/internal/httpapi/v1/handlers"
	"recuento/internal/httpapi/v1/middleware"
	"recuento/internal/storage/sqlite"
	"recuento/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// Manager holds the per-user counting sessions
	Manager *counting.Manager

	// CatalogService owns catalog synchronization
	CatalogService *catalog.Service

	// WarehouseService owns the warehouse set
	WarehouseService *warehouse.Service

	// DB is the local cache handle, used by readiness probes
	DB *sqlite.DB
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	baseHandler := handlers.NewBaseHandler()

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService, cfg.Manager)

		publicAuth := apiV1.Group("/auth")
		protectedAuth := apiV1.Group("/auth")
		protectedAuth.Use(middleware.Auth(cfg.JWTValidator))
		authHandler.RegisterRoutes(publicAuth, protectedAuth)

		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		countingHandler := handlers.NewCountingHandler(baseHandler, cfg.Manager, cfg.WarehouseService)
		countingHandler.RegisterRoutes(protected.Group("/counting"))

		catalogHandler := handlers.NewCatalogHandler(baseHandler, cfg.CatalogService)
		catalogHandler.RegisterRoutes(protected.Group("/catalog"))

		warehouseHandler := handlers.NewWarehouseHandler(baseHandler, cfg.WarehouseService)
		warehouseHandler.RegisterRoutes(protected.Group("/warehouses"))
	}

	return router
}
