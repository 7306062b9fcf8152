package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

type ConfigStore interface {
	All(ctx context.Context, clinicID string) (map[model.ConfigCategory]json.RawMessage, error)
	Get(ctx context.Context, clinicID string, cat model.ConfigCategory) (json.RawMessage, error)
	Put(ctx context.Context, clinicID, actorID string, cat model.ConfigCategory, data json.RawMessage) error
	MergeKey(ctx context.Context, clinicID, actorID string, cat model.ConfigCategory, key string, value any) error
}

type ConfigHandler struct {
	store  ConfigStore
	logger *slog.Logger
}

func NewConfigHandler(store ConfigStore, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{store: store, logger: logger}
}

func (h *ConfigHandler) Mount(r chi.Router) {
	view, manage := authz.Require(authz.ViewSettings), authz.Require(authz.ManageSettings)
	r.With(view).Get("/", h.All)
	r.Get("/dashboard-cards", h.DashboardCards)
	r.With(authz.Require(authz.ViewDashboard)).Put("/dashboard-cards", h.PutDashboardCards)
	r.With(view).Get("/{category}", h.Get)
	r.With(manage).Put("/{category}", h.Put)
}

func (h *ConfigHandler) All(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	blobs, err := h.store.All(r.Context(), p.ClinicID)
	if err != nil {
		writeStoreError(w, r, h.logger, "list config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, blobs)
}

func (h *ConfigHandler) category(w http.ResponseWriter, r *http.Request) (model.ConfigCategory, bool) {
	cat, ok := model.ParseConfigCategory(chi.URLParam(r, "category"))
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "unknown config category")
	}
	return cat, ok
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	data, err := h.store.Get(r.Context(), p.ClinicID, cat)
	if err != nil {
		writeStoreError(w, r, h.logger, "get config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, data)
}

// Put replaces the category blob. The body must be a JSON object.
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	var obj map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &obj); err != nil || obj == nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "body must be a JSON object")
		return
	}
	data, err := json.Marshal(obj)
	if err != nil {
		writeStoreError(w, r, h.logger, "put config", err)
		return
	}
	if err := h.store.Put(r.Context(), p.ClinicID, p.UserID, cat, data); err != nil {
		writeStoreError(w, r, h.logger, "put config", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, json.RawMessage(data))
}

type dashboardCards struct {
	Cards []string `json:"cards"`
}

// DashboardCards returns the saved card order or the default one. Any authenticated user
// may read it.
func (h *ConfigHandler) DashboardCards(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	cards := append([]string(nil), model.DefaultDashboardCards...)
	data, err := h.store.Get(r.Context(), p.ClinicID, model.ConfigInterface)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		writeStoreError(w, r, h.logger, "get dashboard cards", err)
		return
	default:
		var blob map[string]json.RawMessage
		var saved []string
		if json.Unmarshal(data, &blob) == nil && json.Unmarshal(blob[model.DashboardCardsKey], &saved) == nil {
			if norm, _ := model.NormalizeDashboardCards(saved); len(norm) > 0 {
				cards = norm
			}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, dashboardCards{Cards: cards})
}

func (h *ConfigHandler) PutDashboardCards(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var req dashboardCards
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	cards, unknown := model.NormalizeDashboardCards(req.Cards)
	if len(unknown) > 0 {
		httpx.WriteValidation(w, map[string]string{"cards": "unknown card ids: " + strings.Join(unknown, ", ")})
		return
	}
	if len(cards) == 0 {
		httpx.WriteValidation(w, map[string]string{"cards": "required"})
		return
	}
	if err := h.store.MergeKey(r.Context(), p.ClinicID, p.UserID, model.ConfigInterface, model.DashboardCardsKey, cards); err != nil {
		writeStoreError(w, r, h.logger, "put dashboard cards", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dashboardCards{Cards: cards})
}
