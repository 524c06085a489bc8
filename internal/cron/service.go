package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Clock is overridden in tests.
	Clock func() time.Time
}

// Service runs the registered maintenance jobs on a fixed cadence. Each cycle
// holds the shared lock, so replicas never sweep the same carts concurrently.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	clock    func() time.Time
}

// CycleReport summarizes one locked cycle.
type CycleReport struct {
	Skipped bool
	Ran     []string
	Failed  []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		clock:    params.Clock,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval until ctx ends.
// Job failures are logged and never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job once under the lock. All jobs run even when an
// earlier one fails; the returned error combines the failures.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return report, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	var errs error
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return report, multierr.Append(errs, ctx.Err())
		}
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        report.Ran,
		"failed_jobs": report.Failed,
	}), "cron cycle complete")
	return report, errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := s.clock()
	err := job.Run(jobCtx)
	elapsed := s.clock().Sub(start)

	s.metrics.ObserveDuration(job.Name(), elapsed)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(job.Name())
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(jobCtx, "job completed")
	return nil
}
