package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/luzia"
)

type SettingsStore interface {
	Settings(ctx context.Context, clinicID string) (luzia.Settings, error)
	SaveSettings(ctx context.Context, s luzia.Settings, actorID string) (luzia.Settings, error)
}

type LogReader interface {
	Logs(ctx context.Context, clinicID string, limit int) ([]luzia.LogEntry, error)
}

type ClinicNames interface {
	ClinicName(ctx context.Context, clinicID string) (string, error)
}

type Handler struct {
	settings SettingsStore
	logs     LogReader
	clinics  ClinicNames
	logger   *slog.Logger
}

func New(settings SettingsStore, logs LogReader, clinics ClinicNames, logger *slog.Logger) *Handler {
	return &Handler{settings: settings, logs: logs, clinics: clinics, logger: logger}
}

// GetSettings returns the clinic's settings with the API key masked.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	s, err := h.settings.Settings(r.Context(), p.ClinicID)
	if err != nil {
		h.internal(w, r, "load luzia settings", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Masked())
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var u luzia.Update
	if !httpx.DecodeOrReject(w, r, &u) {
		return
	}
	current, err := h.settings.Settings(r.Context(), p.ClinicID)
	if err != nil {
		h.internal(w, r, "load luzia settings", err)
		return
	}
	next, fields := u.Apply(current)
	if fields != nil {
		httpx.WriteValidation(w, fields)
		return
	}
	saved, err := h.settings.SaveSettings(r.Context(), next, p.UserID)
	if err != nil {
		h.internal(w, r, "save luzia settings", err)
		return
	}
	h.logger.Info("luzia settings updated", "clinic_id", p.ClinicID, "user_id", p.UserID, "enabled", saved.Enabled)
	httpx.WriteJSON(w, http.StatusOK, saved.Masked())
}

// ListLogs returns the newest entries first; ?limit defaults to 50 and is capped at 200.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	limit := luzia.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteValidation(w, map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = min(n, luzia.MaxLogLimit)
	}
	items, err := h.logs.Logs(r.Context(), p.ClinicID, limit)
	if err != nil {
		h.internal(w, r, "list luzia logs", err)
		return
	}
	if items == nil {
		items = []luzia.LogEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type previewRequest struct {
	Template string `json:"template"`
	Patient  string `json:"paciente"`
}

// Preview renders a template against a sample appointment tomorrow at 14:00 and, for
// reschedules, the day after at 15:30.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var req previewRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if req.Template == "" {
		httpx.WriteValidation(w, map[string]string{"template": "required"})
		return
	}
	clinic, err := h.clinics.ClinicName(r.Context(), p.ClinicID)
	if err != nil {
		h.internal(w, r, "load clinic name", err)
		return
	}
	if req.Patient == "" {
		req.Patient = "Maria Silva"
	}
	loc := luzia.Location("")
	y, m, d := time.Now().In(loc).Date()
	at := time.Date(y, m, d+1, 14, 0, 0, 0, loc)
	newAt := time.Date(y, m, d+2, 15, 30, 0, 0, loc)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"mensagem": luzia.Render(req.Template, luzia.Vars(clinic, req.Patient, at, newAt, loc)),
	})
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
}
