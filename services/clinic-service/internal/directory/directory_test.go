package directory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
)

type recordingUpserter struct {
	id, name, tz string
	calls        int
}

func (r *recordingUpserter) Upsert(_ context.Context, id, name, tz string) error {
	r.id, r.name, r.tz = id, name, tz
	r.calls++
	return nil
}

func message(t *testing.T, topic string, p events.ClinicCreatedPayload) kafka.Message {
	t.Helper()
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: topic, Value: body, Headers: kafkax.EventMeta{EventID: "e1", EventType: topic}.Headers()}
}

func TestHandlerStoresClinic(t *testing.T) {
	rec := &recordingUpserter{}
	h := Handler(rec)
	err := h(context.Background(), message(t, events.ClinicCreated, events.ClinicCreatedPayload{
		ClinicID: "c1", ClinicName: "Sorriso", Timezone: "America/Manaus",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.id != "c1" || rec.name != "Sorriso" || rec.tz != "America/Manaus" {
		t.Fatalf("unexpected upsert: %+v", rec)
	}
}

func TestHandlerDefaultsUnknownTimezone(t *testing.T) {
	rec := &recordingUpserter{}
	if err := Handler(rec)(context.Background(), message(t, events.ClinicCreated, events.ClinicCreatedPayload{
		ClinicID: "c1", Timezone: "Mars/Olympus",
	})); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.tz != "America/Sao_Paulo" {
		t.Fatalf("expected default timezone, got %q", rec.tz)
	}
}

func TestHandlerIgnoresOtherTopics(t *testing.T) {
	rec := &recordingUpserter{}
	if err := Handler(rec)(context.Background(), message(t, events.UserInvited, events.ClinicCreatedPayload{ClinicID: "c1"})); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("expected no upsert, got %d", rec.calls)
	}
}

func TestHandlerRejectsMissingClinic(t *testing.T) {
	if err := Handler(&recordingUpserter{})(context.Background(), message(t, events.ClinicCreated, events.ClinicCreatedPayload{})); err == nil {
		t.Fatalf("expected error for empty clinic_id")
	}
}
