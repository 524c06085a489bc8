package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/psecars/merch-backend/pkg/db/models"
)

// EnvelopeVersion is written when an event does not pin its own schema version.
const EnvelopeVersion = 1

// Envelope is the JSON body stored in outbox_events.payload and published
// unchanged as the message data. Consumers dedupe on EventID.
type Envelope struct {
	Version     int             `json:"version"`
	EventID     string          `json:"eventId"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Data        json.RawMessage `json:"data"`
}

// Decode reads the envelope back out of a stored row.
func Decode(row models.OutboxEvent) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("outbox row %s: decode envelope: %w", row.ID, err)
	}
	return env, nil
}

// Attributes are the routing attributes attached to a published message.
func Attributes(row models.OutboxEvent, env Envelope) map[string]string {
	attrs := map[string]string{
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID,
		"event_id":       row.ID.String(),
	}
	if env.Version > 0 {
		attrs["schema_version"] = fmt.Sprint(env.Version)
	}
	if !env.OccurredAt.IsZero() {
		attrs["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	}
	return attrs
}
