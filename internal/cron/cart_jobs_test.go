package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psecars/merch-backend/pkg/logger"
)

type fakeSweeper struct {
	expiredAt   time.Time
	cutoffNow   time.Time
	inactiveFor time.Duration
	deleted     int
	err         error
}

func (f *fakeSweeper) ExpireCarts(_ context.Context, now time.Time) (int, error) {
	f.expiredAt = now
	return f.deleted, f.err
}

func (f *fakeSweeper) CleanupInactiveCarts(_ context.Context, now time.Time, inactiveFor time.Duration) (int, error) {
	f.cutoffNow = now
	f.inactiveFor = inactiveFor
	return f.deleted, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

func TestCartExpiryJobPassesCurrentTime(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{deleted: 3}
	jobIface, err := NewCartExpiryJob(CartExpiryJobParams{Logger: testLogger(), Carts: sweeper})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}
	job := jobIface.(*cartExpiryJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sweeper.expiredAt.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, sweeper.expiredAt)
	}
	if job.Name() != "cart-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
}

func TestCartExpiryJobPropagatesError(t *testing.T) {
	sweeper := &fakeSweeper{deleted: 1, err: errors.New("cart 7: locked")}
	job, err := NewCartExpiryJob(CartExpiryJobParams{Logger: testLogger(), Carts: sweeper})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCartInactivityJobDisabledWithoutWindow(t *testing.T) {
	job, err := NewCartInactivityJob(CartInactivityJobParams{Logger: testLogger(), Carts: &fakeSweeper{}})
	if err != nil {
		t.Fatalf("NewCartInactivityJob: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %T", job)
	}
	if got := len(NewRegistry(job).Jobs()); got != 0 {
		t.Fatalf("expected registry to skip nil job, got %d", got)
	}
}

func TestCartInactivityJobUsesWindow(t *testing.T) {
	sweeper := &fakeSweeper{}
	job, err := NewCartInactivityJob(CartInactivityJobParams{
		Logger:      testLogger(),
		Carts:       sweeper,
		InactiveFor: 72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCartInactivityJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.inactiveFor != 72*time.Hour {
		t.Fatalf("expected 72h window, got %s", sweeper.inactiveFor)
	}
	if sweeper.cutoffNow.Location() != time.UTC {
		t.Fatalf("expected UTC time, got %s", sweeper.cutoffNow.Location())
	}
}
