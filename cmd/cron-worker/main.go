package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/psecars/merch-backend/internal/cart"
	"github.com/psecars/merch-backend/internal/cron"
	"github.com/psecars/merch-backend/internal/inventory"
	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
	"github.com/psecars/merch-backend/pkg/migrate"
	"github.com/psecars/merch-backend/pkg/outbox"
	"github.com/psecars/merch-backend/pkg/redis"
)

const (
	serviceKind   = "cron-worker"
	lockKeyFormat = "merch:cron-worker:lock:%s"
)

type runOptions struct {
	once bool
	job  string
}

func main() {
	var opts runOptions
	flag.BoolVar(&opts.once, "once", false, "run a single cycle and exit")
	flag.StringVar(&opts.job, "job", "", "restrict the run to one job by name (implies -once)")
	flag.Parse()
	if opts.job != "" {
		opts.once = true
	}

	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		boot.Error(context.Background(), "cron worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts runOptions) (err error) {
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewCronJobMetrics(reg)

	inv, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), metrics.NewCommerceMetrics(reg))
	if err != nil {
		return err
	}
	carts, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, inv, cfg.Cart.TTL)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logg, dbClient, carts, jobMetrics)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	if opts.job != "" {
		job, ok := registry.Lookup(opts.job)
		if !ok {
			return fmt.Errorf("unknown job %q (registered: %v)", opts.job, registry.Names())
		}
		registry = cron.NewRegistry(job)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"jobs":        registry.Names(),
	})
	if opts.once {
		report, err := scheduler.RunOnce(ctx)
		if report.Skipped {
			return errors.New("another cron worker holds the lock")
		}
		return err
	}
	logg.Info(ctx, "cron worker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	if addr := cfg.Cron.MetricsAddr; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, reg) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logg.Info(ctx, "cron worker stopped")
	}
	return err
}

// serveMetrics exposes reg on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return ctx.Err()
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, carts cart.Service, m *metrics.CronJobMetrics) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	expiry, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{Logger: logg, Carts: carts, Metrics: m})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(expiry); err != nil {
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
	if inactivity != nil {
		if err := registry.Register(inactivity); err != nil {
			return nil, err
		}
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    m,
		Retention:  cfg.Outbox.RetentionDays,
		BatchSize:  cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}
	return registry, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
