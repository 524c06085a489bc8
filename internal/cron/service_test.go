package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"

	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	expiry := &testJob{name: "cart-expiry", err: errors.New("db timeout")}
	inactivity := &testJob{name: "cart-inactivity"}
	retention := &testJob{name: "outbox-retention", err: errors.New("locked")}
	lock := &fakeLock{}
	service := newTestService(t, lock, nil, expiry, inactivity, retention)

	report, err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 job errors, got %d (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "cart-expiry: db timeout") {
		t.Fatalf("expected job name in error, got %v", err)
	}
	for _, job := range []*testJob{expiry, inactivity, retention} {
		if job.runs != 1 {
			t.Fatalf("%s ran %d times", job.name, job.runs)
		}
	}
	if len(report.Ran) != 3 || len(report.Failed) != 2 || report.Failed[1] != "outbox-retention" {
		t.Fatalf("unexpected report %+v", report)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{held: true}, nil, job)

	report, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !report.Skipped || job.runs != 0 {
		t.Fatalf("expected skipped cycle, report=%+v runs=%d", report, job.runs)
	}
}

func TestRunOnceLockError(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")}, nil, job)

	if _, err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatal("job must not run without the lock")
	}
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := service.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times after cancel", job.runs)
	}
}

func TestRunOnceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	service := newTestService(t, &fakeLock{}, metrics.NewCronJobMetrics(reg),
		&testJob{name: "cart-expiry"},
		&testJob{name: "outbox-retention", err: errors.New("boom")},
	)

	_, _ = service.RunOnce(context.Background())
	count, err := testutil.GatherAndCount(reg, "merch_cron_job_runs_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one success and one failure series, got %d", count)
	}
	count, err = testutil.GatherAndCount(reg, "merch_cron_job_last_success_timestamp_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("only the successful job should be stamped, got %d", count)
	}
}

type signalJob struct {
	ran chan struct{}
}

func (s *signalJob) Name() string { return "cart-expiry" }

func (s *signalJob) Run(context.Context) error {
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return nil
}

func TestRunReturnsOnCancel(t *testing.T) {
	job := &signalJob{ran: make(chan struct{}, 1)}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never ran")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})}); err == nil {
		t.Fatal("expected error without lock")
	}
}
