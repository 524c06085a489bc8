package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/migrate"
	"github.com/psecars/merch-backend/pkg/outbox"
	"github.com/psecars/merch-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		boot.Error(context.Background(), "outbox publisher exited", err)
		stop()
		os.Exit(1)
	}
}

// run wires the publisher and blocks until ctx is cancelled. Teardown errors
// are folded into the returned error.
func run(ctx context.Context) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	topics, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() { err = multierr.Append(err, topics.Close()) }()

	repo := outbox.NewRepository(dbClient.DB())
	relay, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		PubSub: topics,
		Store:  func(tx *gorm.DB) outboxStore { return repo.WithTx(tx) },
	})
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"topic":       cfg.PubSub.OrderEventsTopic,
	})
	logg.Info(ctx, "outbox publisher started")
	err = relay.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "outbox publisher stopped")
	}
	return err
}
