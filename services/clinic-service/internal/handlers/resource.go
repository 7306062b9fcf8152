package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
)

// Store is the CRUD contract shared by the clinic repositories.
type Store[T any] interface {
	List(ctx context.Context, clinicID string) ([]T, error)
	Get(ctx context.Context, clinicID, id string) (T, error)
	Create(ctx context.Context, clinicID string, in T) (T, error)
	Update(ctx context.Context, clinicID, id string, in T) (T, error)
	Delete(ctx context.Context, clinicID, id string) error
}

type validator[T any] interface {
	*T
	Validate() error
}

// Resource serves list/get/create/update/delete for one record type. The clinic comes from
// the principal, never from the body.
type Resource[T any, PT validator[T]] struct {
	name   string
	store  Store[T]
	logger *slog.Logger
}

func NewResource[T any, PT validator[T]](name string, store Store[T], logger *slog.Logger) *Resource[T, PT] {
	return &Resource[T, PT]{name: name, store: store, logger: logger}
}

// Mount registers the routes under the current router, reads guarded by view and writes by manage.
func (h *Resource[T, PT]) Mount(r chi.Router, view, manage authz.Action) {
	r.With(authz.Require(view)).Get("/", h.List)
	r.With(authz.Require(view)).Get("/{id}", h.Get)
	r.With(authz.Require(manage)).Post("/", h.Create)
	r.With(authz.Require(manage)).Put("/{id}", h.Update)
	r.With(authz.Require(manage)).Delete("/{id}", h.Delete)
}

func (h *Resource[T, PT]) List(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	rows, err := h.store.List(r.Context(), p.ClinicID)
	if err != nil {
		writeStoreError(w, r, h.logger, "list "+h.name, err)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Resource[T, PT]) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	row, err := h.store.Get(r.Context(), p.ClinicID, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, h.logger, "get "+h.name, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, row)
}

func (h *Resource[T, PT]) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var in T
	if !httpx.DecodeOrReject(w, r, &in) {
		return
	}
	if err := PT(&in).Validate(); err != nil {
		writeStoreError(w, r, h.logger, "validate "+h.name, err)
		return
	}
	row, err := h.store.Create(r.Context(), p.ClinicID, in)
	if err != nil {
		writeStoreError(w, r, h.logger, "create "+h.name, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, row)
}

func (h *Resource[T, PT]) Update(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var in T
	if !httpx.DecodeOrReject(w, r, &in) {
		return
	}
	if err := PT(&in).Validate(); err != nil {
		writeStoreError(w, r, h.logger, "validate "+h.name, err)
		return
	}
	row, err := h.store.Update(r.Context(), p.ClinicID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeStoreError(w, r, h.logger, "update "+h.name, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, row)
}

func (h *Resource[T, PT]) Delete(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	if err := h.store.Delete(r.Context(), p.ClinicID, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, h.logger, "delete "+h.name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
