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

	"pizza-phone-agent/backend/internal/api"
	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/session"
	"pizza-phone-agent/backend/pkg/config"
	"pizza-phone-agent/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV"), "pizza-phone-agent"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting phone order server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	menus := buildMenuProvider(ctx, cfg, log)

	sinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to set up order sinks", zap.Error(err))
	}
	defer sinks.Close()
	log.Info("Order sinks ready", zap.Strings("sinks", sinks.Fanout.Names()))

	calls, closeCalls := buildCallLog(ctx, cfg, log)
	defer closeCalls()

	manager := session.NewManager(session.Options{
		Config:    cfg,
		Finalizer: order.NewFinalizer(sinks.Fanout, log),
		Recorder:  calllog.Recorder(calls, cfg.ClientSlug, log),
		Logger:    log,
	})

	deps := api.Deps{
		Config:   cfg,
		Sessions: manager,
		Menus:    menus,
		Calls:    calls,
		Logger:   log,
	}
	if sinks.Graph != nil {
		deps.Customers = sinks.Graph
	}
	router := api.NewServer(deps).Router()

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("business", cfg.BusinessName),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// Live calls get their last finalize attempt before the sinks close.
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Session shutdown incomplete", zap.Error(err))
	}

	log.Info("Server exited")
}
