package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/cep"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/search"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

// GenerationHeader carries the client's search request number.
const GenerationHeader = "X-Search-Generation"

const codeStaleSearch = "stale_search"

type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Result, error)
}

type AddressLookup interface {
	Lookup(ctx context.Context, raw string) (cep.Address, error)
}

type InsurerCatalog interface {
	List(ctx context.Context) []insurance.Insurer
	Plans(ctx context.Context, insurerID string) []insurance.Plan
}

type SummaryStore interface {
	Summary(ctx context.Context, clinicID string, dayStart, dayEnd time.Time) (storage.Summary, error)
}

// LookupHandler serves the read-only helpers: global search, CEP lookup, the insurer
// catalog and the dashboard summary.
type LookupHandler struct {
	search   Searcher
	address  AddressLookup
	insurers InsurerCatalog
	summary  SummaryStore
	zones    TimezoneSource
	logger   *slog.Logger
	now      func() time.Time
}

func NewLookupHandler(s Searcher, a AddressLookup, ins InsurerCatalog, sum SummaryStore, zones TimezoneSource, logger *slog.Logger) *LookupHandler {
	return &LookupHandler{search: s, address: a, insurers: ins, summary: sum, zones: zones, logger: logger, now: time.Now}
}

// Search answers 409 stale_search when a newer generation from the same user has been seen.
// Result sections the caller may not view stay empty.
func (h *LookupHandler) Search(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var gen int64
	if raw := r.Header.Get(GenerationHeader); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			httpx.WriteValidation(w, map[string]string{GenerationHeader: "must be a non-negative integer"})
			return
		}
		gen = v
	}
	res, err := h.search.Search(r.Context(), search.Request{
		ClinicID:         p.ClinicID,
		UserID:           p.UserID,
		Query:            r.URL.Query().Get("q"),
		Generation:       gen,
		CanPatients:      authz.Decide(p, authz.ViewPatients).Allowed,
		CanProfessionals: authz.Decide(p, authz.ViewProfessionals).Allowed,
	})
	if errors.Is(err, search.ErrStale) {
		httpx.WriteError(w, http.StatusConflict, codeStaleSearch, "a newer search superseded this one")
		return
	}
	if err != nil {
		writeStoreError(w, r, h.logger, "search", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *LookupHandler) CEP(w http.ResponseWriter, r *http.Request) {
	addr, err := h.address.Lookup(r.Context(), chi.URLParam(r, "cep"))
	switch {
	case errors.Is(err, cep.ErrInvalid):
		httpx.WriteValidation(w, map[string]string{"cep": "must have 8 digits"})
	case errors.Is(err, cep.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "address not found")
	case err != nil:
		writeStoreError(w, r, h.logger, "cep lookup", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, addr)
	}
}

func (h *LookupHandler) Insurers(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.insurers.List(r.Context())})
}

func (h *LookupHandler) Plans(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.insurers.Plans(r.Context(), chi.URLParam(r, "id"))})
}

// Summary counts today's appointments in the clinic's own calendar day.
func (h *LookupHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	loc := clinicLocation(r.Context(), h.zones, h.logger, p.ClinicID)
	y, m, d := h.now().In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	s, err := h.summary.Summary(r.Context(), p.ClinicID, start, start.AddDate(0, 0, 1))
	if err != nil {
		writeStoreError(w, r, h.logger, "dashboard summary", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}
