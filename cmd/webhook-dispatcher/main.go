package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediavault/mediavault-backend/internal/webhooks"
	"github.com/mediavault/mediavault-backend/pkg/config"
	"github.com/mediavault/mediavault-backend/pkg/db"
	"github.com/mediavault/mediavault-backend/pkg/logger"
	"github.com/mediavault/mediavault-backend/pkg/metrics"
	"github.com/mediavault/mediavault-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "webhook-dispatcher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "webhook-dispatcher"

	logg = logger.New(logger.Options{
		ServiceName: "webhook-dispatcher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	repo := webhooks.NewRepository(dbClient.DB())
	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	service, err := webhooks.NewService(webhooks.ServiceParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Repo:    repo,
		SubRepo: webhooks.NewSubscriptionRepository(dbClient.DB()),
		Metrics: deliveryMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	dispatcher, err := webhooks.NewDispatcher(webhooks.DispatcherParams{
		Config:  cfg,
		Logger:  logg,
		Repo:    repo,
		Service: service,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting webhook dispatcher")

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "webhook dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "webhook dispatcher shutting down gracefully")
}
