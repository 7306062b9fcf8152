// Package search runs the global patient and professional lookup. Clients number their
// requests; a response that has been overtaken by a newer generation is withheld so it
// cannot overwrite fresher results.
package search

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

const (
	MinQueryRunes = 2
	ResultLimit   = 5
)

var ErrStale = errors.New("stale search generation")

type PatientSearcher interface {
	SearchByName(ctx context.Context, clinicID, q string, limit int) ([]model.Patient, error)
}

type ProfessionalSearcher interface {
	SearchByName(ctx context.Context, clinicID, q string, limit int) ([]model.Professional, error)
}

type PatientHit struct {
	ID    string  `json:"id"`
	Name  string  `json:"nome"`
	Phone *string `json:"telefone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type ProfessionalHit struct {
	ID        string  `json:"id"`
	Name      string  `json:"nome"`
	Specialty *string `json:"especialidade,omitempty"`
}

type Result struct {
	Query         string            `json:"q"`
	Generation    int64             `json:"generation,omitempty"`
	Patients      []PatientHit      `json:"pacientes"`
	Professionals []ProfessionalHit `json:"profissionais"`
}

type Service struct {
	patients      PatientSearcher
	professionals ProfessionalSearcher
	tracker       Tracker
}

func NewService(patients PatientSearcher, professionals ProfessionalSearcher, tracker Tracker) *Service {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	return &Service{patients: patients, professionals: professionals, tracker: tracker}
}

type Request struct {
	ClinicID string
	UserID   string
	Query    string
	// Generation is the client's monotonically increasing request number; zero disables the guard.
	Generation int64
	// CanPatients and CanProfessionals limit the result to what the caller may see.
	CanPatients      bool
	CanProfessionals bool
}

func (s *Service) Search(ctx context.Context, req Request) (Result, error) {
	q := strings.TrimSpace(req.Query)
	res := Result{Query: q, Generation: req.Generation, Patients: []PatientHit{}, Professionals: []ProfessionalHit{}}
	key := req.ClinicID + ":" + req.UserID

	if req.Generation > 0 {
		latest, err := s.tracker.Observe(ctx, key, req.Generation)
		if err != nil {
			return Result{}, err
		}
		if latest > req.Generation {
			return Result{}, ErrStale
		}
	}
	if utf8.RuneCountInString(q) < MinQueryRunes {
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if req.CanPatients {
		g.Go(func() error {
			rows, err := s.patients.SearchByName(gctx, req.ClinicID, q, ResultLimit)
			for _, p := range rows {
				res.Patients = append(res.Patients, PatientHit{ID: p.ID, Name: p.Name, Phone: firstNonNil(p.Mobile, p.Phone), Email: p.Email})
			}
			return err
		})
	}
	if req.CanProfessionals {
		g.Go(func() error {
			rows, err := s.professionals.SearchByName(gctx, req.ClinicID, q, ResultLimit)
			for _, p := range rows {
				res.Professionals = append(res.Professionals, ProfessionalHit{ID: p.ID, Name: p.Name, Specialty: p.Specialty})
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if req.Generation > 0 {
		latest, err := s.tracker.Latest(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if latest > req.Generation {
			return Result{}, ErrStale
		}
	}
	return res, nil
}

func firstNonNil(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
