package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestLinkRequestValidate(t *testing.T) {
	cases := []struct {
		name  string
		req   LinkRequest
		field string
	}{
		{"defaults", LinkRequest{AmountCents: 1000}, ""},
		{"zero amount", LinkRequest{}, "amount_cents"},
		{"card 13x", LinkRequest{AmountCents: 1, Installments: 13}, "installments"},
		{"pix 2x", LinkRequest{AmountCents: 1, Method: MethodPix, Installments: 2}, "installments"},
		{"boleto", LinkRequest{AmountCents: 1, Method: "boleto"}, "method"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := tc.req.Validate()
			if tc.field == "" {
				if fields != nil {
					t.Fatalf("expected valid, got %v", fields)
				}
				if tc.req.Description != DefaultDescription || tc.req.Method != MethodCard || tc.req.Installments != 1 {
					t.Fatalf("defaults not applied: %+v", tc.req)
				}
				return
			}
			if fields[tc.field] == "" {
				t.Fatalf("expected error on %s, got %v", tc.field, fields)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	if st, ok := StatusForEvent("checkout.session.async_payment_succeeded"); !ok || st != StatusPaid {
		t.Fatalf("expected pago, got %q", st)
	}
	if _, ok := StatusForEvent("invoice.paid"); ok {
		t.Fatalf("unrelated events must not move payments")
	}
	if _, ok := StatusOfSession("complete", "unpaid"); ok {
		t.Fatalf("processing pix must stay pending")
	}
	if st, ok := StatusOfSession("expired", "unpaid"); !ok || st != StatusExpired {
		t.Fatalf("expected expirado, got %q", st)
	}
}

type memStore struct {
	byKey  map[string]Payment
	failed []string
}

func (m *memStore) UpsertPending(_ context.Context, clinicID, _, key string, req LinkRequest) (Payment, error) {
	if p, ok := m.byKey[key]; ok {
		return p, nil
	}
	p := Payment{ID: "pay-" + key, ClinicID: clinicID, Method: req.Method, Installments: req.Installments,
		AmountCents: req.AmountCents, Description: req.Description, Status: StatusPending}
	m.byKey[key] = p
	return p, nil
}

func (m *memStore) AttachSession(_ context.Context, _, id, sessionID, url string) (Payment, error) {
	for k, p := range m.byKey {
		if p.ID == id {
			p.ProviderRef, p.CheckoutURL = &sessionID, &url
			m.byKey[k] = p
			return p, nil
		}
	}
	return Payment{}, errors.New("missing")
}

func (m *memStore) MarkFailed(_ context.Context, _, id, _ string) error {
	m.failed = append(m.failed, id)
	for k, p := range m.byKey {
		if p.ID == id {
			p.Status = StatusFailed
			m.byKey[k] = p
		}
	}
	return nil
}

type countingGateway struct {
	calls int
	err   error
}

func (g *countingGateway) CreateSession(_ context.Context, p Payment) (Session, error) {
	g.calls++
	if g.err != nil {
		return Session{}, g.err
	}
	return Session{ID: "cs_" + p.ID, URL: "https://checkout.example/" + p.ID}, nil
}

func TestCreateLinkIsIdempotent(t *testing.T) {
	store, gw := &memStore{byKey: map[string]Payment{}}, &countingGateway{}
	svc := NewService(store, gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := LinkRequest{AmountCents: 5000}
	req.Validate()

	first, err := svc.CreateLink(context.Background(), "c1", "u1", "k1", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.CreateLink(context.Background(), "c1", "u1", "k1", req)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if gw.calls != 1 || first.ID != second.ID || second.CheckoutURL == nil {
		t.Fatalf("expected one session reused, calls=%d first=%+v second=%+v", gw.calls, first, second)
	}

	other := req
	other.AmountCents = 7000
	if _, err := svc.CreateLink(context.Background(), "c1", "u1", "k1", other); !errors.Is(err, ErrKeyReused) {
		t.Fatalf("expected ErrKeyReused, got %v", err)
	}
}

func TestCreateLinkMarksProviderFailure(t *testing.T) {
	store, gw := &memStore{byKey: map[string]Payment{}}, &countingGateway{err: errors.New("card_declined")}
	svc := NewService(store, gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := LinkRequest{AmountCents: 100}
	req.Validate()
	if _, err := svc.CreateLink(context.Background(), "c1", "u1", "k2", req); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if len(store.failed) != 1 || store.byKey["k2"].Status != StatusFailed {
		t.Fatalf("expected payment marked falhou, got %+v", store.byKey["k2"])
	}
}
