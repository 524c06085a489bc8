package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
	"github.com/psecars/merch-backend/pkg/logger"
)

var errNoTx = errors.New("outbox: emit needs the caller's transaction")

// DomainEvent is what services hand to Emit. Data is marshalled into the
// envelope as-is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("outbox: unknown aggregate type %q", e.AggregateType)
	}
	return nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stages event in tx. It becomes visible to the publisher only if tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.check(); err != nil {
		return err
	}
	row, err := s.seal(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx.WithContext(ctx), row); err != nil {
		return fmt.Errorf("outbox: stage %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     row.ID.String(),
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox.staged")
	}
	return nil
}

// seal wraps the event data in an envelope and builds the row to insert.
func (s *Service) seal(event DomainEvent) (models.OutboxEvent, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox: marshal %s data: %w", event.EventType, err)
	}
	id := uuid.New()
	env := Envelope{
		Version:     event.Version,
		EventID:     id.String(),
		Type:        string(event.EventType),
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt,
		Data:        data,
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, nil
}
