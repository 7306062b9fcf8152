package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
)

type fakeSource struct {
	insurers []insurance.Insurer
	plans    []insurance.Plan
	err      error
	calls    int
}

func (f *fakeSource) Insurers(context.Context) ([]insurance.Insurer, error) {
	f.calls++
	return f.insurers, f.err
}

func (f *fakeSource) Plans(context.Context, string) ([]insurance.Plan, error) {
	f.calls++
	return f.plans, f.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEmptyTableServesBuiltIn(t *testing.T) {
	svc := NewInsurers(&fakeSource{}, time.Minute, quiet())
	if got := svc.List(context.Background()); len(got) != 8 {
		t.Fatalf("expected 8 built-in insurers, got %d", len(got))
	}
	if got := svc.Plans(context.Background(), "bradesco"); len(got) != 2 {
		t.Fatalf("expected 2 bradesco plans, got %d", len(got))
	}
}

func TestFailingTableServesBuiltIn(t *testing.T) {
	svc := NewInsurers(&fakeSource{err: errors.New("down")}, time.Minute, quiet())
	if got := svc.List(context.Background()); len(got) != 8 {
		t.Fatalf("expected fallback, got %d", len(got))
	}
}

func TestResultsAreCachedUntilExpiry(t *testing.T) {
	src := &fakeSource{insurers: []insurance.Insurer{{ID: "x", Name: "X Odonto"}}}
	svc := NewInsurers(src, time.Minute, quiet())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.List(context.Background())
	svc.List(context.Background())
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}
	now = now.Add(2 * time.Minute)
	if got := svc.List(context.Background()); len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("unexpected insurers %+v", got)
	}
	if src.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", src.calls)
	}
}

func TestUnknownInsurerHasNoPlans(t *testing.T) {
	svc := NewInsurers(&fakeSource{}, time.Minute, quiet())
	got := svc.Plans(context.Background(), "nope")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
