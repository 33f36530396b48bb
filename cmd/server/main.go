package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/api"
	"zipsales/server/internal/lock"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/processor"
	"zipsales/server/internal/query"
	"zipsales/server/internal/queue"
	"zipsales/server/internal/salesync"
	"zipsales/server/internal/scheduler"
	"zipsales/server/internal/store"
	"zipsales/server/internal/upstream"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	m := metrics.New()

	logger.WithField("backend", cfg.Storage.Backend).Info("Opening stores...")
	stores, err := store.Open(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open stores")
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.WithError(err).Error("Failed to close stores")
		}
	}()

	locker, err := lock.New(cfg.Sync, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize sync lock")
	}
	if c, ok := locker.(io.Closer); ok {
		defer c.Close()
	}

	if cfg.Upstream.BaseURL == "" || cfg.Upstream.APIKey == "" {
		logger.Warn("ATTOM_BASE_URL or ATTOM_API_KEY is not set, sales lookups will fail")
	}
	client := upstream.NewClient(cfg.Upstream, logger, m)

	syncEngine := salesync.NewEngine(client, stores.Records, stores.Metadata, locker, cfg.Sync, logger, m)
	queryEngine := query.NewEngine(stores.Records, cfg.Query, logger, m)
	service := salesync.NewService(syncEngine, queryEngine)

	// Background refresh of tracked zipcodes
	var (
		refresh *processor.RefreshProcessor
		sched   *scheduler.Scheduler
	)
	if tracked := cfg.Refresh.TrackedZipcodesList(); len(tracked) > 0 {
		q := queue.NewZipcodeQueue(cfg.Refresh.QueueSize, logger)
		refresh = processor.NewRefreshProcessor(syncEngine, q, cfg.Refresh, logger, m)
		refresh.Start()

		sched = scheduler.NewScheduler(q, tracked, cfg.Refresh.Interval, logger)
		sched.Start()
		logger.WithField("zipcodes", len(tracked)).Info("Started background refresh")
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(service, stores.Records, stores.Metadata, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins, m, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	if sched != nil {
		sched.Stop()
	}
	if refresh != nil {
		refresh.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
