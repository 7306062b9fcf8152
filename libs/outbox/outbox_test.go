package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
)

func TestNewAssignsIDAndMarshals(t *testing.T) {
	evt, err := New("clinic.appointment.created.v1", "c1", "appointment", "a1", map[string]string{"id": "a1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if evt.EventID == "" {
		t.Fatalf("expected event id")
	}
	var body map[string]string
	if err := json.Unmarshal(evt.Payload, &body); err != nil || body["id"] != "a1" {
		t.Fatalf("unexpected payload %s (%v)", evt.Payload, err)
	}
}

func TestMessageCarriesMetadata(t *testing.T) {
	msg := Message(context.Background(), Record{
		EventID:     "e1",
		ClinicID:    "c1",
		AggregateID: "a1",
		EventType:   "billing.payment.paid.v1",
		Payload:     []byte(`{}`),
	})
	if msg.Topic != "billing.payment.paid.v1" || string(msg.Key) != "a1" {
		t.Fatalf("unexpected routing: %s %s", msg.Topic, msg.Key)
	}
	meta := kafkax.MetaOf(msg)
	if meta.EventID != "e1" || meta.ClinicID != "c1" || meta.EventType != "billing.payment.paid.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
