package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

type InventoryStore interface {
	Store[model.InventoryItem]
	Find(ctx context.Context, clinicID string, q storage.ItemQuery) ([]model.InventoryItem, error)
	ApplyMovement(ctx context.Context, clinicID, itemID, actorID string, m model.StockMovement) (model.InventoryItem, model.StockMovement, error)
	Movements(ctx context.Context, clinicID, itemID string, limit int) ([]model.StockMovement, error)
}

// InventoryHandler serves stock items. Item CRUD reuses Resource; listing adds the text,
// low-stock and active filters.
type InventoryHandler struct {
	*Resource[model.InventoryItem, *model.InventoryItem]
	items  InventoryStore
	logger *slog.Logger
}

func NewInventoryHandler(items InventoryStore, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		Resource: NewResource[model.InventoryItem]("inventory item", Store[model.InventoryItem](items), logger),
		items:    items,
		logger:   logger,
	}
}

func (h *InventoryHandler) Mount(r chi.Router) {
	view, manage := authz.Require(authz.ViewInventory), authz.Require(authz.ManageInventory)
	r.With(view).Get("/", h.List)
	r.With(view).Get("/{id}", h.Get)
	r.With(manage).Post("/", h.Create)
	r.With(manage).Put("/{id}", h.Update)
	r.With(manage).Delete("/{id}", h.Delete)
	r.With(view).Get("/{id}/movements", h.ListMovements)
	r.With(manage).Post("/{id}/movements", h.Move)
}

// List accepts ?q= (name substring or exact barcode), ?em_falta=true and ?ativos=true.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	q := r.URL.Query()
	query := storage.ItemQuery{
		Text:       q.Get("q"),
		LowStock:   q.Get("em_falta") == "true",
		ActiveOnly: q.Get("ativos") == "true",
	}
	rows, err := h.items.Find(r.Context(), p.ClinicID, query)
	if err != nil {
		writeStoreError(w, r, h.logger, "list inventory", err)
		return
	}
	if rows == nil {
		rows = []model.InventoryItem{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *InventoryHandler) Move(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var m model.StockMovement
	if !httpx.DecodeOrReject(w, r, &m) {
		return
	}
	if err := m.Validate(); err != nil {
		writeStoreError(w, r, h.logger, "stock movement", err)
		return
	}
	item, rec, err := h.items.ApplyMovement(r.Context(), p.ClinicID, chi.URLParam(r, "id"), p.UserID, m)
	if err != nil {
		writeStoreError(w, r, h.logger, "stock movement", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"produto": item, "movimentacao": rec})
}

func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.items.Movements(r.Context(), p.ClinicID, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeStoreError(w, r, h.logger, "list movements", err)
		return
	}
	if rows == nil {
		rows = []model.StockMovement{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}
