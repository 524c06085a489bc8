package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/psecars/merch-backend/api/routes"
	"github.com/psecars/merch-backend/internal/cart"
	"github.com/psecars/merch-backend/internal/catalog"
	"github.com/psecars/merch-backend/internal/cron"
	"github.com/psecars/merch-backend/internal/inventory"
	"github.com/psecars/merch-backend/internal/orders"
	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
	"github.com/psecars/merch-backend/pkg/migrate"
	"github.com/psecars/merch-backend/pkg/outbox"
	"github.com/psecars/merch-backend/pkg/redis"
	"github.com/psecars/merch-backend/pkg/session"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessions, err := session.NewStore(redisClient, cfg.Cart.ServerSessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create session store", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commerce := metrics.NewCommerceMetrics(registry)

	inv, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), commerce)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	carts, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, inv, cfg.Cart.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, inv, carts, commerce)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()), inv)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      routes.NewRouter(cfg, logg, dbClient, redisClient, sessions, registry, metrics.NewHTTPMetrics(registry), carts, ordersService, catalogService),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logg.Info(logg.WithField(gctx, "port", cfg.App.Port), "starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.FeatureFlags.InProcessSweeper {
		sweeper, err := newSweeper(cfg, logg, redisClient, carts, metrics.NewCronJobMetrics(registry))
		if err != nil {
			logg.Error(ctx, "failed to create cart sweeper", err)
			os.Exit(1)
		}
		group.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newSweeper builds a cron service that only runs the cart jobs. API replicas
// share one redis lock so a sweep runs once per tick.
func newSweeper(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, carts cart.Service, m *metrics.CronJobMetrics) (*cron.Service, error) {
	expiry, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{Logger: logg, Carts: carts, Metrics: m})
	if err != nil {
		return nil, err
	}
	inactivity, err := cron.NewCartInactivityJob(cron.CartInactivityJobParams{
		Logger:      logg,
		Carts:       carts,
		Metrics:     m,
		InactiveFor: cfg.Cart.InactiveAfter,
	})
	if err != nil {
		return nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, "merch:api:cart-sweeper:"+cfg.App.Env, cfg.Cart.SweepInterval)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiry, inactivity),
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Cart.SweepInterval,
	})
}
