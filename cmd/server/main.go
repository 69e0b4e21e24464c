// Package main is the entry point for the marmora stock service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"marmora/internal/config"
	"marmora/internal/domain/auth"
	"marmora/internal/domain/stock"
	v1 "marmora/internal/infrastructure/http/v1"
	"marmora/internal/infrastructure/lock"
	"marmora/internal/infrastructure/restclient"
	"marmora/internal/infrastructure/storage/postgres"
	"marmora/internal/infrastructure/storage/postgres/auth_repo"
	"marmora/internal/infrastructure/storage/postgres/stock_repo"
	"marmora/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment || !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting marmora server", "backend", cfg.StoreBackend)

	// --- PostgreSQL ---
	// Operator accounts and the adjustment log always live here; stock
	// records do too unless the REST backend is selected.
	poolCfg := postgres.DefaultPoolConfig(cfg.PGDSN)
	poolCfg.MaxConns = cfg.PGMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	adjustmentLog, err := postgres.NewAdjustmentLog(txManager)
	if err != nil {
		log.Fatalw("failed to create adjustment log", "error", err)
	}

	// --- Stock store backend ---
	var (
		stockStore  stock.Store
		locker      stock.Locker
		stockTx     = (*postgres.TxManager)(nil)
		redisClient redis.UniversalClient
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		stockStore = stock_repo.NewStockRepo(txManager)
		stockTx = txManager

	case config.BackendRest:
		stockStore = restclient.NewClient(restclient.Config{
			BaseURL: cfg.StockAPIBaseURL,
			APIKey:  cfg.StockAPIKey,
			Timeout: cfg.StockAPITimeout,
		})

		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalw("failed to ping redis", "error", err)
		}
		defer redisClient.Close()

		lockCfg := lock.DefaultConfig()
		lockCfg.TTL = cfg.LockTTL
		locker = lock.NewRedisLocker(redisClient, lockCfg)
	}

	var stockService *stock.Service
	if stockTx != nil {
		stockService = stock.NewService(stockStore, stockTx, locker, adjustmentLog)
	} else {
		stockService = stock.NewService(stockStore, nil, locker, adjustmentLog)
	}

	// --- Auth ---
	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWTSecret,
		Issuer:         "marmora",
		AccessTokenTTL: cfg.JWTAccessTokenTTL,
	})

	authCfg := auth.DefaultServiceConfig()
	authCfg.BootstrapAdminEmail = cfg.BootstrapAdminEmail
	authCfg.BootstrapAdminPassword = cfg.BootstrapAdminPassword
	authService := auth.NewService(auth_repo.NewUserRepo(txManager), jwtService, authCfg)

	if err := authService.EnsureBootstrapAdmin(ctx); err != nil {
		log.Fatalw("failed to seed bootstrap admin", "error", err)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		AuthService:  authService,
		StockService: stockService,
		StockStore:   stockStore,
		Pool:         pool,
		RedisClient:  redisClient,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
