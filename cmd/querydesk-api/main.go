package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querydesk/querydesk/internal/api"
	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/engine/mysql"
	"github.com/querydesk/querydesk/internal/engine/postgres"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/query"
	s3store "github.com/querydesk/querydesk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("querydesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	dispatcher, err := engine.NewDispatcher(mysql.New(), postgres.New())
	if err != nil {
		logger.Error("failed to register engine adapters", slog.Any("error", err))
		os.Exit(1)
	}
	service, err := query.NewService(dispatcher, logger)
	if err != nil {
		logger.Error("failed to initialize query service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Queries:           service,
		DependencyTimeout: time.Second,
	}

	if cfg.Export.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		exporter, err := export.NewExporter(objectStore)
		if err != nil {
			logger.Error("failed to initialize exporter", slog.Any("error", err))
			os.Exit(1)
		}
		exporter.LinkTTL = cfg.Export.LinkTTL
		exporter.Logger = logger
		deps.Exporter = exporter
		deps.Exports = objectStore
		deps.Readiness = api.CombineReadinessChecks(
			api.CheckObjectStoreConfig(cfg),
			objectStore.HealthCheck,
		)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.Any("engines", dispatcher.Kinds()),
			slog.Bool("export_enabled", cfg.Export.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
