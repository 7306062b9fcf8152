package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/storage"
)

const testSecret = "whsec_test"

type memEvents struct {
	seen    map[string]bool
	applied []storage.ProviderEvent
}

func (m *memEvents) ApplyProviderEvent(_ context.Context, evt storage.ProviderEvent) (*payments.Payment, error) {
	if m.seen[evt.ID] {
		return nil, storage.ErrDuplicateProviderEvent
	}
	m.seen[evt.ID] = true
	m.applied = append(m.applied, evt)
	if evt.Status == "" {
		return nil, nil
	}
	return &payments.Payment{ID: evt.PaymentID, Status: evt.Status}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func eventBody(id, typ, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":%q,"metadata":{"payment_id":"pay-1"}}}}`,
		id, typ, time.Now().Unix(), paymentStatus))
}

func signedRequest(body []byte, secret string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: secret, Timestamp: time.Now()})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhooks/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func newWebhookMux(store EventStore) *http.ServeMux {
	mux := http.NewServeMux()
	Register(mux, NewPaymentsHandler(nil, nil, discard()), NewWebhookHandler(store, testSecret, 0, discard()))
	return mux
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	store := &memEvents{seen: map[string]bool{}}
	rec := httptest.NewRecorder()
	newWebhookMux(store).ServeHTTP(rec, signedRequest(eventBody("evt_1", "checkout.session.completed", "paid"), "whsec_other"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(store.applied) != 0 {
		t.Fatalf("nothing must be applied on a bad signature")
	}
}

func TestStripeWebhookAppliesOnce(t *testing.T) {
	store := &memEvents{seen: map[string]bool{}}
	mux := newWebhookMux(store)
	body := eventBody("evt_2", "checkout.session.completed", "paid")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, signedRequest(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.applied) != 1 || store.applied[0].Status != payments.StatusPaid || store.applied[0].PaymentID != "pay-1" {
		t.Fatalf("unexpected applied events: %+v", store.applied)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, signedRequest(body, testSecret))
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp["status"] != "duplicate" {
		t.Fatalf("expected duplicate ack, got %d %v", rec.Code, resp)
	}
	if len(store.applied) != 1 {
		t.Fatalf("duplicate must not apply a second change")
	}
}

func TestStripeWebhookKeepsProcessingPixPending(t *testing.T) {
	store := &memEvents{seen: map[string]bool{}}
	rec := httptest.NewRecorder()
	newWebhookMux(store).ServeHTTP(rec, signedRequest(eventBody("evt_3", "checkout.session.completed", "unpaid"), testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.applied) != 1 || store.applied[0].Status != "" {
		t.Fatalf("expected the delivery recorded without a status change, got %+v", store.applied)
	}
}

type stubLinks struct {
	key string
	err error
}

func (s *stubLinks) CreateLink(_ context.Context, clinicID, _, key string, req payments.LinkRequest) (payments.Payment, error) {
	s.key = key
	if s.err != nil {
		return payments.Payment{}, s.err
	}
	return payments.Payment{ID: "pay-1", ClinicID: clinicID, AmountCents: req.AmountCents, Status: payments.StatusPending}, nil
}

type emptyReader struct{}

func (emptyReader) List(context.Context, string, int) ([]payments.Payment, error) { return nil, nil }
func (emptyReader) Get(context.Context, string, string) (payments.Payment, error) {
	return payments.Payment{}, storage.ErrNotFound
}

func TestCreateLinkHandler(t *testing.T) {
	links := &stubLinks{}
	mux := http.NewServeMux()
	Register(mux, NewPaymentsHandler(links, emptyReader{}, discard()), NewWebhookHandler(nil, "", 0, discard()))

	var perms authz.Permissions
	perms.Set(authz.Financeiro, true)
	p := authz.Principal{UserID: "u1", ClinicID: "c1", Role: authz.RoleUser, Permissions: perms}

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/links", strings.NewReader(body))
		p.WriteHeaders(req.Header)
		req.Header.Set(IdempotencyHeader, "key-1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(`{"amount_cents":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := send(`{"amount_cents":1500,"method":"pix","installments":1}`); rec.Code != http.StatusCreated || links.key != "key-1" {
		t.Fatalf("expected 201 with key forwarded, got %d key=%q", rec.Code, links.key)
	}
	links.err = payments.ErrProvider
	if rec := send(`{"amount_cents":1500}`); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil)
	p.WriteHeaders(req.Header)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
