package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"customer-cqrs-service/internal/api"
	"customer-cqrs-service/internal/cache"
	"customer-cqrs-service/internal/config"
	"customer-cqrs-service/internal/database"
	"customer-cqrs-service/internal/logger"
	"customer-cqrs-service/internal/service"
	"customer-cqrs-service/internal/store"
	syncjob "customer-cqrs-service/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Customer CQRS Service")

	// Write and read databases
	writeDB, err := database.NewDatabase(cfg.Databases.Write)
	if err != nil {
		logger.Log.Fatal("Failed to connect to write database", zap.Error(err))
	}
	defer writeDB.Close()

	readDB, err := database.NewDatabase(cfg.Databases.Read)
	if err != nil {
		logger.Log.Fatal("Failed to connect to read database", zap.Error(err))
	}
	defer readDB.Close()

	writeStore := store.NewMySQLWriteStore(writeDB)
	readStore := store.NewMySQLReadStore(readDB)
	ledger := store.NewMySQLSyncLedger(writeDB)

	// Response cache. The service degrades to uncached reads if Redis is
	// unreachable at startup.
	var responseCache cache.Cache
	var invalidator *cache.Invalidator
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, serving uncached reads", zap.Error(err))
	} else {
		defer redisCache.Close()
		responseCache = redisCache
		invalidator = cache.NewInvalidator(redisCache)
	}

	commands := service.NewCommandService(writeStore, invalidator)
	queries := service.NewQueryService(readStore, writeStore, responseCache, cfg.Redis.GetTTL())

	// Reconciliation: once at startup, then on the configured interval.
	reconciler := syncjob.NewReconciler(writeStore, readStore, ledger)
	scheduler := syncjob.NewScheduler(cfg.Sync.GetInterval(), reconciler, syncjob.NewLocalLocker())
	scheduler.Start()
	defer scheduler.Stop()

	// Optional realtime cache invalidation from the binlog.
	if cfg.Sync.Realtime && invalidator != nil {
		stream, err := syncjob.NewChangeStream(cfg.Databases.Write, invalidator)
		if err != nil {
			logger.Log.Error("Failed to start change stream", zap.Error(err))
		} else {
			stream.Start()
			defer stream.Stop()
		}
	}

	// HTTP surface
	handler := api.NewHandler(commands, queries, ledger, scheduler)
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
