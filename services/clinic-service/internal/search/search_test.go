package search

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type fakePatients struct {
	rows   []model.Patient
	during func()
	calls  int
}

func (f *fakePatients) SearchByName(_ context.Context, _, _ string, limit int) ([]model.Patient, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

type fakeProfessionals struct{ rows []model.Professional }

func (f *fakeProfessionals) SearchByName(context.Context, string, string, int) ([]model.Professional, error) {
	return f.rows, nil
}

func allowed(q string, gen int64) Request {
	return Request{ClinicID: "c1", UserID: "u1", Query: q, Generation: gen, CanPatients: true, CanProfessionals: true}
}

func TestShortQueryReturnsEmpty(t *testing.T) {
	pats := &fakePatients{rows: []model.Patient{{ID: "1", Name: "Maria"}}}
	svc := NewService(pats, &fakeProfessionals{}, nil)
	res, err := svc.Search(context.Background(), allowed("é", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Patients) != 0 || pats.calls != 0 {
		t.Fatalf("expected no lookup for one-rune query")
	}
}

func TestSearchReturnsBothKinds(t *testing.T) {
	pats := &fakePatients{rows: []model.Patient{{ID: "1", Name: "Maria"}, {ID: "2", Name: "Mariana"}}}
	profs := &fakeProfessionals{rows: []model.Professional{{ID: "p", Name: "Dra. Mariele"}}}
	res, err := NewService(pats, profs, nil).Search(context.Background(), allowed("mar", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Patients) != 2 || len(res.Professionals) != 1 || res.Generation != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchRespectsVisibility(t *testing.T) {
	pats := &fakePatients{rows: []model.Patient{{ID: "1", Name: "Maria"}}}
	req := allowed("mar", 0)
	req.CanPatients = false
	res, err := NewService(pats, &fakeProfessionals{}, nil).Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pats.calls != 0 || len(res.Patients) != 0 {
		t.Fatalf("patients searched without permission")
	}
}

func TestOlderGenerationIsStaleOnArrival(t *testing.T) {
	tracker := NewMemoryTracker()
	svc := NewService(&fakePatients{}, &fakeProfessionals{}, tracker)
	if _, err := svc.Search(context.Background(), allowed("maria", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Search(context.Background(), allowed("mari", 4))
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestGenerationOvertakenDuringQueryIsStale(t *testing.T) {
	tracker := NewMemoryTracker()
	pats := &fakePatients{rows: []model.Patient{{ID: "1", Name: "Maria"}}}
	pats.during = func() { _, _ = tracker.Observe(context.Background(), "c1:u1", 8) }
	_, err := NewService(pats, &fakeProfessionals{}, tracker).Search(context.Background(), allowed("mar", 7))
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestGenerationsAreScopedPerUser(t *testing.T) {
	tracker := NewMemoryTracker()
	svc := NewService(&fakePatients{}, &fakeProfessionals{}, tracker)
	if _, err := svc.Search(context.Background(), allowed("maria", 9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := allowed("maria", 1)
	other.UserID = "u2"
	if _, err := svc.Search(context.Background(), other); err != nil {
		t.Fatalf("another user's generation must not interfere: %v", err)
	}
}
