package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/outbox"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	OrderEventsPublisher() *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error, at time.Time) error
}

// storeFactory binds the outbox store to the batch transaction.
type storeFactory func(tx *gorm.DB) outboxStore

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        dbClient
	PubSub    pubSubClient
	Store     storeFactory
	Publisher publisher
}

// Service relays committed outbox rows to the order events topic.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	store       storeFactory
	publisher   publisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	}

	pub := p.Publisher
	if pub == nil {
		topic := p.PubSub.OrderEventsPublisher()
		if topic == nil {
			return nil, errors.New("order events publisher is not configured")
		}
		pub = topicPublisher{topic}
	}

	oc := p.Config.Outbox
	s := &Service{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		store:       p.Store,
		publisher:   pub,
		batchSize:   orDefault(oc.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(oc.MaxAttempts, defaultMaxAttempts),
		poll:        defaultPoll,
		now:         time.Now,
	}
	if oc.PollIntervalMS > 0 {
		s.poll = time.Duration(oc.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Run checks both dependencies, then drains the outbox until ctx ends. A full
// batch is followed immediately by the next one; an empty batch waits one poll
// interval; a failed batch backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.name), "outbox.dependency_unreachable", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	wait := s.poll
	for {
		n, err := s.processBatch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = nextBackoff(wait, s.poll, maxBackoff)
		case n > 0:
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims one batch inside a transaction, fires every publish at
// once, then records each outcome. A failed publish bumps the row's attempt
// count; rows out of attempts are no longer fetched.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	var handled int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.store(tx)
		rows, err := store.FetchUnpublished(ctx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		handled = len(rows)
		if handled == 0 {
			return nil
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		pending := make([]publishResult, len(rows))
		for i, row := range rows {
			pending[i] = s.send(pubCtx, row)
		}

		for i, row := range rows {
			if err := await(pubCtx, pending[i]); err != nil {
				s.logFailure(ctx, row, err)
				if markErr := store.MarkFailed(ctx, row.ID, err, s.now().UTC()); markErr != nil {
					return fmt.Errorf("record failure for %s: %w", row.ID, markErr)
				}
				continue
			}
			if err := store.MarkPublished(ctx, row.ID, s.now().UTC()); err != nil {
				return fmt.Errorf("record publish for %s: %w", row.ID, err)
			}
		}
		return nil
	})
	if err == nil && handled > 0 {
		s.logg.Info(s.logg.WithField(ctx, "rows", handled), "outbox.batch_published")
	}
	return handled, err
}

func (s *Service) send(ctx context.Context, row models.OutboxEvent) publishResult {
	env, err := outbox.Decode(row)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "outbox_id", row.ID.String()), "outbox.undecodable_payload")
	}
	return s.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: outbox.Attributes(row, env),
	})
}

func await(ctx context.Context, res publishResult) error {
	if res == nil {
		return errors.New("publisher returned no result")
	}
	_, err := res.Get(ctx)
	return err
}

func (s *Service) logFailure(ctx context.Context, row models.OutboxEvent, err error) {
	row.AttemptCount++
	fields := map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID,
		"attempt":      row.AttemptCount,
		"error":        err.Error(),
	}
	if row.Exhausted(s.maxAttempts) {
		fields["exhausted"] = true
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox.publish_failed")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, limit)
}

// jitter spreads wake-ups by up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}

// topicPublisher adapts *pubsub.Publisher to the publisher interface.
type topicPublisher struct{ p *gcppubsub.Publisher }

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}
