package mail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/dentalcare/libs/events"
)

type sent struct{ to, subject, body string }

type recorder struct{ mails []sent }

func (r *recorder) Send(_ context.Context, to, subject, body string) error {
	r.mails = append(r.mails, sent{to, subject, body})
	return nil
}

type memDirectory map[string]string

func (m memDirectory) UpsertClinic(_ context.Context, id, name, _ string) error {
	m[id] = name
	return nil
}

func (m memDirectory) ClinicName(_ context.Context, id string) (string, error) { return m[id], nil }

func message(t *testing.T, topic string, v any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: topic, Value: raw}
}

func TestAuthEventsSendMail(t *testing.T) {
	rec := &recorder{}
	dir := memDirectory{}
	h := Handler(rec, dir, "https://app.example.com/", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if err := h(ctx, message(t, events.ClinicCreated, events.ClinicCreatedPayload{ClinicID: "c1", ClinicName: "Sorriso"})); err != nil {
		t.Fatalf("clinic: %v", err)
	}
	if dir["c1"] != "Sorriso" {
		t.Fatalf("directory not fed")
	}

	invite := events.UserInvitedPayload{ClinicID: "c1", Name: "Ana", Email: "ana@example.com", Token: "a b", ExpiresAt: time.Now().Add(time.Hour)}
	if err := h(ctx, message(t, events.UserInvited, invite)); err != nil {
		t.Fatalf("invite: %v", err)
	}
	reset := events.EmailTokenPayload{Email: "ana@example.com", Name: "Ana", Token: "tok"}
	if err := h(ctx, message(t, events.PasswordResetRequested, reset)); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if len(rec.mails) != 2 {
		t.Fatalf("expected two mails, got %d", len(rec.mails))
	}
	if rec.mails[0].subject != "Convite para Sorriso" || !strings.Contains(rec.mails[0].body, "https://app.example.com/convite?token=a+b") {
		t.Fatalf("unexpected invite mail: %+v", rec.mails[0])
	}
	if !strings.Contains(rec.mails[1].body, "/redefinir-senha?token=tok") {
		t.Fatalf("unexpected reset mail: %+v", rec.mails[1])
	}

	if err := h(ctx, message(t, events.EmailConfirmationRequired, events.EmailTokenPayload{Token: "x"})); err == nil {
		t.Fatalf("missing recipient must be an error")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@x", "to@y", "Assunto", "corpo")
	if !strings.HasPrefix(msg, "From: from@x\r\nTo: to@y\r\nSubject: Assunto\r\n") || !strings.HasSuffix(msg, "\r\n\r\ncorpo\r\n") {
		t.Fatalf("unexpected message %q", msg)
	}
}
