package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/scrapetrack/internal/api"
	"github.com/timmy/scrapetrack/internal/config"
	"github.com/timmy/scrapetrack/internal/history"
	"github.com/timmy/scrapetrack/internal/kvstore"
	"github.com/timmy/scrapetrack/internal/logger"
	"github.com/timmy/scrapetrack/internal/remotelog"
	"github.com/timmy/scrapetrack/internal/tracker"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx := context.Background()

	kv, err := kvstore.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize history backend")
	}
	defer kv.Close()

	store := history.NewStore(kv, &history.Config{
		Key:      cfg.History.Key,
		MaxItems: cfg.History.MaxItems,
	})

	var remote remotelog.Client = remotelog.Discard{}
	if cfg.RemoteLog.Enabled {
		remote = remotelog.NewHTTPClient(&remotelog.Config{
			BaseURL:    cfg.RemoteLog.BaseURL,
			APIKey:     cfg.RemoteLog.APIKey,
			Timeout:    cfg.RemoteLog.Timeout,
			RetryCount: cfg.RemoteLog.RetryCount,
		})
		appLogger.WithField("base_url", cfg.RemoteLog.BaseURL).Info("Remote log mirroring enabled")
	}

	registry := tracker.NewRegistry(store, remote, &tracker.Config{
		AsyncMirror:      cfg.Tracker.AsyncMirror,
		RejectDuplicates: cfg.Tracker.RejectDuplicates,
	})

	router := api.SetupRouter(registry, store, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"mode":    cfg.Server.Mode,
			"backend": cfg.History.Backend,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := registry.Close(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Remote log updates not fully drained")
	}

	appLogger.Info("Server exited")
}
