package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestSignedWebhookVerifies(t *testing.T) {
	ev := simEvent{
		ID:            "evt_1",
		Type:          "checkout.session.completed",
		SessionID:     "cs_1",
		PaymentID:     "pay-1",
		PaymentStatus: "paid",
		Created:       time.Now().UTC(),
	}
	req, err := signedWebhookRequest("http://gw.local/", "whsec_test", ev)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.URL.Path != stripeWebhookPath {
		t.Fatalf("path = %q", req.URL.Path)
	}
	body, _ := io.ReadAll(req.Body)
	evt, err := webhook.ConstructEventWithOptions(body, req.Header.Get("Stripe-Signature"), "whsec_test",
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if evt.ID != "evt_1" || string(evt.Type) != ev.Type {
		t.Fatalf("event = %s %s", evt.ID, evt.Type)
	}

	var obj struct {
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
		t.Fatalf("decode object: %v", err)
	}
	if obj.Status != "complete" || obj.Metadata["payment_id"] != "pay-1" {
		t.Fatalf("object = %+v", obj)
	}
}

func TestEventPayloadRejectsForeignTypes(t *testing.T) {
	if _, err := eventPayload(simEvent{Type: "invoice.paid"}); err == nil {
		t.Fatalf("expected error")
	}
	raw, err := eventPayload(simEvent{Type: "checkout.session.expired", PaymentID: "p"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !strings.Contains(string(raw), `"status":"expired"`) {
		t.Fatalf("payload = %s", raw)
	}
}

func TestWebhookSimCommandPosts(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("Stripe-Signature")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	cmd := webhookSimCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--base-url", srv.URL, "--secret", "whsec_x", "--payment-id", "pay-9"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(gotSig, "t=") {
		t.Fatalf("signature header = %q", gotSig)
	}
	if !strings.Contains(out.String(), "status=200") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestWebhookSimRequiresPaymentID(t *testing.T) {
	cmd := webhookSimCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--secret", "whsec_x"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without payment id")
	}
}

func TestSchemasLoad(t *testing.T) {
	for _, name := range schemaNames() {
		s, err := lookupSchema(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		migrations, err := db.LoadMigrations(s.fsys)
		if err != nil || len(migrations) == 0 {
			t.Fatalf("%s: migrations=%d err=%v", name, len(migrations), err)
		}
	}
	if _, err := lookupSchema("booking"); err == nil {
		t.Fatalf("expected unknown service error")
	}
}

func TestCatalogBatchOrdersInsurersFirst(t *testing.T) {
	batch := catalogBatch()
	want := len(insurance.Insurers()) + len(insurance.Plans())
	if batch.Len() != want {
		t.Fatalf("batch len = %d, want %d", batch.Len(), want)
	}
	first := batch.QueuedQueries[0].SQL
	last := batch.QueuedQueries[batch.Len()-1].SQL
	if first != upsertInsurerSQL || last != upsertPlanSQL {
		t.Fatalf("unexpected order")
	}
}
