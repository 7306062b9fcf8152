package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

type AppointmentStore interface {
	List(ctx context.Context, clinicID string, from, to time.Time) ([]model.AppointmentView, error)
	Get(ctx context.Context, clinicID, id string) (model.AppointmentView, error)
	Create(ctx context.Context, clinicID string, in model.Appointment) (storage.WriteResult, error)
	Update(ctx context.Context, clinicID, id string, in model.Appointment) (storage.WriteResult, error)
	SetStatus(ctx context.Context, clinicID, id string, status model.AppointmentStatus) (storage.WriteResult, error)
	Delete(ctx context.Context, clinicID, id string) error
}

// TimezoneSource resolves the IANA zone a clinic's calendar dates are expressed in.
type TimezoneSource interface {
	Timezone(ctx context.Context, clinicID string) (string, error)
}

type AppointmentsHandler struct {
	store  AppointmentStore
	zones  TimezoneSource
	logger *slog.Logger
	now    func() time.Time
}

func NewAppointmentsHandler(store AppointmentStore, zones TimezoneSource, logger *slog.Logger) *AppointmentsHandler {
	return &AppointmentsHandler{store: store, zones: zones, logger: logger, now: time.Now}
}

func (h *AppointmentsHandler) Mount(r chi.Router) {
	r.With(authz.Require(authz.ViewAgenda)).Get("/", h.List)
	r.With(authz.Require(authz.ViewAgenda)).Get("/day", h.Day)
	r.With(authz.Require(authz.ViewAgenda)).Get("/{id}", h.Get)
	r.With(authz.Require(authz.ManageAgenda)).Post("/", h.Create)
	r.With(authz.Require(authz.ManageAgenda)).Put("/{id}", h.Update)
	r.With(authz.Require(authz.ManageAgenda)).Put("/{id}/status", h.SetStatus)
	r.With(authz.Require(authz.ManageAgenda)).Delete("/{id}", h.Delete)
}

func (h *AppointmentsHandler) location(ctx context.Context, clinicID string) *time.Location {
	return clinicLocation(ctx, h.zones, h.logger, clinicID)
}

// clinicLocation falls back to the default zone when the lookup fails.
func clinicLocation(ctx context.Context, zones TimezoneSource, logger *slog.Logger, clinicID string) *time.Location {
	name, err := zones.Timezone(ctx, clinicID)
	if err != nil {
		logger.Warn("clinic timezone lookup failed", "err", err, "clinic_id", clinicID)
		name = agenda.DefaultTimezone
	}
	return agenda.Location(name)
}

// List applies the agenda filter from the query string. Date bounds narrow the query
// and the remaining predicates run in memory.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	q := r.URL.Query()
	f := agenda.Filter{
		Text:           q.Get("q"),
		ProfessionalID: q.Get("profissional_id"),
		From:           q.Get("data_inicio"),
		To:             q.Get("data_fim"),
	}
	fields := map[string]string{}
	if v := q.Get("tipo"); v != "" {
		t, ok := model.ParseAppointmentType(v)
		if !ok {
			fields["tipo"] = "unknown appointment type"
		}
		f.Type = t
	}
	if v := q.Get("status"); v != "" {
		st, ok := model.ParseAppointmentStatus(v)
		if !ok {
			fields["status"] = "unknown appointment status"
		}
		f.Status = st
	}
	if len(fields) > 0 {
		httpx.WriteValidation(w, fields)
		return
	}

	m, err := f.Compile(h.location(r.Context(), p.ClinicID))
	if err != nil {
		writeStoreError(w, r, h.logger, "list appointments", err)
		return
	}
	from, to := m.Bounds()
	rows, err := h.store.List(r.Context(), p.ClinicID, from, to)
	if err != nil {
		writeStoreError(w, r, h.logger, "list appointments", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": m.Apply(rows)})
}

// Day renders the hourly grid for ?data=YYYY-MM-DD (today by default) in clinic time.
func (h *AppointmentsHandler) Day(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	loc := h.location(r.Context(), p.ClinicID)
	date := r.URL.Query().Get("data")
	if date == "" {
		date = h.now().In(loc).Format(model.DateLayout)
	}
	start, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		httpx.WriteValidation(w, map[string]string{"data": "must be YYYY-MM-DD"})
		return
	}
	rows, err := h.store.List(r.Context(), p.ClinicID, start, start.AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		writeStoreError(w, r, h.logger, "agenda day", err)
		return
	}
	day, err := agenda.DailyView(rows, date, r.URL.Query().Get("profissional_id"), loc)
	if err != nil {
		writeStoreError(w, r, h.logger, "agenda day", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, day)
}

func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	v, err := h.store.Get(r.Context(), p.ClinicID, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, h.logger, "get appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var in model.Appointment
	if !httpx.DecodeOrReject(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeStoreError(w, r, h.logger, "create appointment", err)
		return
	}
	res, err := h.store.Create(r.Context(), p.ClinicID, in)
	if err != nil {
		writeStoreError(w, r, h.logger, "create appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, withConflicts(res))
}

func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var in model.Appointment
	if !httpx.DecodeOrReject(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeStoreError(w, r, h.logger, "update appointment", err)
		return
	}
	res, err := h.store.Update(r.Context(), p.ClinicID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeStoreError(w, r, h.logger, "update appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, withConflicts(res))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *AppointmentsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var req statusRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	status, ok := model.ParseAppointmentStatus(req.Status)
	if !ok {
		httpx.WriteValidation(w, map[string]string{"status": "unknown appointment status"})
		return
	}
	res, err := h.store.SetStatus(r.Context(), p.ClinicID, chi.URLParam(r, "id"), status)
	if err != nil {
		writeStoreError(w, r, h.logger, "set appointment status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, withConflicts(res))
}

func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	if err := h.store.Delete(r.Context(), p.ClinicID, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, h.logger, "delete appointment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func withConflicts(res storage.WriteResult) storage.WriteResult {
	if res.Conflicts == nil {
		res.Conflicts = []string{}
	}
	return res
}
