package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/psecars/merch-backend/pkg/enums"
)

// maxOutboxErrorLen bounds last_error so a verbose broker error cannot bloat the row.
const maxOutboxErrorLen = 1024

// OutboxEvent is a domain event staged in the same transaction as the state
// change it describes. The publisher sets PublishedAt once the broker acks.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   string                    `gorm:"column:aggregate_id;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastAttemptAt *time.Time                `gorm:"column:last_attempt_at"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e OutboxEvent) Published() bool { return e.PublishedAt != nil }

// Exhausted reports whether the row has used up maxAttempts. A non-positive
// limit never exhausts.
func (e OutboxEvent) Exhausted(maxAttempts int) bool {
	return maxAttempts > 0 && e.AttemptCount >= maxAttempts
}

// OutboxErrorText trims err to what fits in last_error.
func OutboxErrorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxOutboxErrorLen {
		msg = msg[:maxOutboxErrorLen]
	}
	return msg
}
