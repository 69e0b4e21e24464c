// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"marmora/internal/domain/auth"
	"marmora/internal/domain/stock"
	"marmora/internal/infrastructure/http/v1/handlers"
	"marmora/internal/infrastructure/http/v1/middleware"
	"marmora/internal/infrastructure/storage/postgres"
	"marmora/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// StockService runs the core stock operations
	StockService *stock.Service

	// StockStore backs the company-stocks CRUD surface
	StockStore stock.Store

	// Pool is the database pool, nil when running on the REST backend
	Pool *postgres.Pool

	// RedisClient is the lock backend, nil when running on PostgreSQL
	RedisClient redis.UniversalClient
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
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.RedisClient)
	healthHandler.RegisterRoutes(router.Group("/health"))

	baseHandler := handlers.NewBaseHandler()

	// API v1
	v1 := router.Group("/api/v1")
	{
		if cfg.AuthService != nil {
			authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)

			publicAuth := v1.Group("/auth")
			protectedAuth := v1.Group("/auth")
			protectedAuth.Use(middleware.Auth(cfg.JWTValidator))

			authHandler.RegisterRoutes(publicAuth, protectedAuth)
		}

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		stockHandler := handlers.NewStockHandler(baseHandler, cfg.StockService)
		stockHandler.RegisterRoutes(protected.Group("/stock"))

		stocksHandler := handlers.NewCompanyStocksHandler(baseHandler, cfg.StockStore)
		stocksHandler.RegisterRoutes(protected.Group("/company-stocks"))
	}

	return router
}
