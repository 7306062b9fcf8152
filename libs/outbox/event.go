// Package outbox implements the transactional outbox shared by every pgx-backed service.
// Events are inserted in the same transaction as the state change and relayed to Kafka
// afterwards; the topic name equals the event type.
package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
)

type Event struct {
	EventID       string
	ClinicID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// New marshals payload and assigns a fresh event id.
func New(eventType, clinicID, aggregateType, aggregateID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		ClinicID:      clinicID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
