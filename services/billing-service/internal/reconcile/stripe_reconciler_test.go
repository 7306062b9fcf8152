package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
)

type memStore struct {
	rows        []payments.Payment
	transitions map[string]payments.Status
	locked      bool
}

func (m *memStore) PendingSessions(_ context.Context, olderThan time.Time, limit int) ([]payments.Payment, error) {
	var out []payments.Payment
	for _, p := range m.rows {
		if p.Status == payments.StatusPending && p.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Transition(_ context.Context, id string, status payments.Status, _ time.Time) (*payments.Payment, error) {
	m.transitions[id] = status
	return &payments.Payment{ID: id, Status: status}, nil
}

func (m *memStore) TryLock(context.Context, int64) (func(), error) {
	if m.locked {
		return nil, nil
	}
	m.locked = true
	return func() { m.locked = false }, nil
}

type fakeSessions map[string]payments.Status

func (f fakeSessions) SessionStatus(_ context.Context, id string) (payments.Status, bool, error) {
	if id == "cs_err" {
		return "", false, errors.New("stripe down")
	}
	st, ok := f[id]
	return st, ok, nil
}

func ref(s string) *string { return &s }

func TestReconcileOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)
	store := &memStore{transitions: map[string]payments.Status{}, rows: []payments.Payment{
		{ID: "paid", Status: payments.StatusPending, ProviderRef: ref("cs_paid"), CreatedAt: old},
		{ID: "open", Status: payments.StatusPending, ProviderRef: ref("cs_open"), CreatedAt: old},
		{ID: "err", Status: payments.StatusPending, ProviderRef: ref("cs_err"), CreatedAt: old},
		{ID: "fresh", Status: payments.StatusPending, ProviderRef: ref("cs_fresh"), CreatedAt: now.Add(-time.Minute)},
		{ID: "gone", Status: payments.StatusPending, ProviderRef: ref("cs_gone"), CreatedAt: old},
	}}
	sessions := fakeSessions{"cs_paid": payments.StatusPaid, "cs_gone": payments.StatusExpired, "cs_fresh": payments.StatusPaid}

	r := NewStripeReconciler(store, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	r.now = func() time.Time { return now }

	if n := r.ReconcileOnce(context.Background()); n != 2 {
		t.Fatalf("expected 2 updates, got %d (%v)", n, store.transitions)
	}
	if store.transitions["paid"] != payments.StatusPaid || store.transitions["gone"] != payments.StatusExpired {
		t.Fatalf("unexpected transitions: %v", store.transitions)
	}
	if _, ok := store.transitions["fresh"]; ok {
		t.Fatalf("sessions younger than MinAge must be left to webhooks")
	}
}

func TestRunReleasesLockOnShutdown(t *testing.T) {
	store := &memStore{transitions: map[string]payments.Status{}}
	r := NewStripeReconciler(store, fakeSessions{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if store.locked {
		t.Fatalf("lock must be released when Run returns")
	}
}
