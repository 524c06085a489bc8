package cron

import (
	"context"
	"reflect"
	"testing"
	"time"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsDisabledJobs(t *testing.T) {
	// a zero inactivity window disables that job
	inactivity, err := NewCartInactivityJob(CartInactivityJobParams{InactiveFor: 0})
	if err != nil {
		t.Fatalf("NewCartInactivityJob: %v", err)
	}
	registry := NewRegistry(namedJob("cart-expiry"), inactivity)
	if err := registry.Register(namedJob("outbox-retention")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(nil); err != nil {
		t.Fatalf("nil job should be ignored: %v", err)
	}

	want := []string{"cart-expiry", "outbox-retention"}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestRegistryJobsIsACopy(t *testing.T) {
	registry := NewRegistry(namedJob("cart-expiry"))
	jobs := registry.Jobs()
	jobs[0] = namedJob("mutated")
	if registry.Names()[0] != "cart-expiry" {
		t.Fatal("caller mutated the registry")
	}
}

func TestInactivityJobEnabledWithWindow(t *testing.T) {
	job, err := NewCartInactivityJob(CartInactivityJobParams{
		Logger:      testLogger(),
		Carts:       &fakeSweeper{},
		InactiveFor: 72 * time.Hour,
	})
	if err != nil || job == nil {
		t.Fatalf("expected job, got %v err=%v", job, err)
	}
	if NewRegistry(job).Names()[0] != job.Name() {
		t.Fatal("registered job name mismatch")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(namedJob("cart-expiry"))
	if err := registry.Register(namedJob("cart-expiry")); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("duplicate was appended: %d jobs", got)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("NewRegistry should panic on duplicates")
		}
	}()
	NewRegistry(namedJob("a"), namedJob("a"))
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(namedJob("cart-expiry"), namedJob("outbox-retention"))
	job, ok := registry.Lookup("outbox-retention")
	if !ok || job.Name() != "outbox-retention" {
		t.Fatalf("lookup = %v, %v", job, ok)
	}
	if _, ok := registry.Lookup("nightly-report"); ok {
		t.Fatal("unknown job found")
	}
	var empty Registry
	if _, ok := empty.Lookup("x"); ok {
		t.Fatal("zero registry found a job")
	}
	if err := empty.Register(namedJob("x")); err != nil {
		t.Fatalf("zero registry Register: %v", err)
	}
}
