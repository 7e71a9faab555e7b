package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bersepay/internal/bootstrap"
	"bersepay/internal/config"
	cronpkg "bersepay/internal/cron"
	"bersepay/internal/gateway"
	"bersepay/internal/handler"
	"bersepay/internal/repository"
	"bersepay/internal/router"
	"bersepay/internal/webhook"
)

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	var logger *zap.Logger
	if cfg.Server.IsLive() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Repositories ---
	providerRepo := repository.NewProviderRepository(db)
	ruleRepo := repository.NewRoutingRuleRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// --- Gateway Registry ---
	registry := gateway.NewRegistry(providerRepo, ruleRepo, logger)

	// --- Webhook Pipeline (Redis replay guard with in-memory fallback) ---
	replayGuard, replayErr := webhook.NewReplayGuard(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		cfg.Webhook.ReplayTTL,
	)
	if replayErr != nil {
		logger.Warn("Redis unavailable for webhook replay guard, using in-memory fallback",
			zap.Error(replayErr))
	}
	reconciler := webhook.NewLedgerReconciler(ledgerRepo, logger)
	pipeline := webhook.NewPipeline(registry, reconciler, replayGuard, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, handler.NewWebhookHandler(pipeline, logger))

	// --- Provider Health Monitor ---
	monitor := cronpkg.NewHealthMonitor(registry, providerRepo, logger)
	monitor.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting payment gateway server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
