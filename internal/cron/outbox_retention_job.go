package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/metrics"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPurgeBatchSize  = 500
	// maxPurgeBatches bounds one run; leftovers wait for the next cycle.
	maxPurgeBatches = 200
)

// OutboxRetentionJobParams configures NewOutboxRetentionJob. Retention is in
// days; zero values fall back to defaults.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	Metrics    *metrics.CronJobMetrics
	Retention  int
	BatchSize  int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	db      txRunner
	purger  outboxPurger
	metrics *metrics.CronJobMetrics
	keep    time.Duration
	batch   int
	now     func() time.Time
}

func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("outbox retention: logger is required")
	case p.DB == nil:
		return nil, errors.New("outbox retention: db is required")
	case p.Repository == nil:
		return nil, errors.New("outbox retention: repository is required")
	}
	job := &outboxRetentionJob{
		logg:    p.Logger,
		db:      p.DB,
		purger:  p.Repository,
		metrics: p.Metrics,
		keep:    defaultOutboxRetention,
		batch:   defaultPurgeBatchSize,
		now:     time.Now,
	}
	if p.Retention > 0 {
		job.keep = time.Duration(p.Retention) * 24 * time.Hour
	}
	if p.BatchSize > 0 {
		job.batch = p.BatchSize
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run purges published events older than the retention window in batches,
// each in its own transaction. Unpublished rows are never removed.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var total int64
	batches := 0
	for ; batches < maxPurgeBatches; batches++ {
		if err := ctx.Err(); err != nil {
			j.metrics.AddProcessed(j.Name(), int(total))
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.purger.DeletePublishedBefore(ctx, tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			j.metrics.AddProcessed(j.Name(), int(total))
			return fmt.Errorf("outbox retention: purge failed after %d rows: %w", total, err)
		}
		total += n
		if n < int64(j.batch) {
			batches++
			break
		}
	}
	j.metrics.AddProcessed(j.Name(), int(total))

	ctx = j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": total,
		"batches": batches,
	})
	if batches == maxPurgeBatches {
		j.logg.Warn(ctx, "outbox.purge_truncated")
		return nil
	}
	j.logg.Info(ctx, "outbox.purged")
	return nil
}
