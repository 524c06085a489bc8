package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
)

type cartSweeper interface {
	ExpireCarts(ctx context.Context, now time.Time) (int, error)
	CleanupInactiveCarts(ctx context.Context, now time.Time, inactiveFor time.Duration) (int, error)
}

// CartExpiryJobParams configure the cart-expiry job.
type CartExpiryJobParams struct {
	Logger  *logger.Logger
	Carts   cartSweeper
	Metrics *metrics.CronJobMetrics
}

// NewCartExpiryJob deletes carts whose expiry has passed.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartExpiryJob{
		logg:    params.Logger,
		carts:   params.Carts,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg    *logger.Logger
	carts   cartSweeper
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deleted, err := j.carts.ExpireCarts(ctx, now)
	j.metrics.AddProcessed(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"now":           now,
		"carts_deleted": deleted,
	})
	if err != nil {
		return fmt.Errorf("expire carts: %w", err)
	}
	j.logg.Info(logCtx, "expired carts removed")
	return nil
}

// CartInactivityJobParams configure the cart-inactivity job.
type CartInactivityJobParams struct {
	Logger      *logger.Logger
	Carts       cartSweeper
	Metrics     *metrics.CronJobMetrics
	InactiveFor time.Duration
}

// NewCartInactivityJob deletes carts untouched for InactiveFor. It returns a nil
// job when the window is disabled.
func NewCartInactivityJob(params CartInactivityJobParams) (Job, error) {
	if params.InactiveFor <= 0 {
		return nil, nil
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartInactivityJob{
		logg:        params.Logger,
		carts:       params.Carts,
		metrics:     params.Metrics,
		inactiveFor: params.InactiveFor,
		now:         time.Now,
	}, nil
}

type cartInactivityJob struct {
	logg        *logger.Logger
	carts       cartSweeper
	metrics     *metrics.CronJobMetrics
	inactiveFor time.Duration
	now         func() time.Time
}

func (j *cartInactivityJob) Name() string { return "cart-inactivity" }

func (j *cartInactivityJob) Run(ctx context.Context) error {
	deleted, err := j.carts.CleanupInactiveCarts(ctx, j.now().UTC(), j.inactiveFor)
	j.metrics.AddProcessed(j.Name(), deleted)
	if err != nil {
		return fmt.Errorf("cleanup inactive carts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"inactive_for":  j.inactiveFor.String(),
		"carts_deleted": deleted,
	})
	j.logg.Info(logCtx, "inactive carts removed")
	return nil
}
