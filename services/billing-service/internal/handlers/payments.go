package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/storage"
)

const IdempotencyHeader = "Idempotency-Key"

type LinkCreator interface {
	CreateLink(ctx context.Context, clinicID, actorID, key string, req payments.LinkRequest) (payments.Payment, error)
}

type PaymentReader interface {
	List(ctx context.Context, clinicID string, limit int) ([]payments.Payment, error)
	Get(ctx context.Context, clinicID, id string) (payments.Payment, error)
}

type PaymentsHandler struct {
	links  LinkCreator
	reader PaymentReader
	logger *slog.Logger
}

func NewPaymentsHandler(links LinkCreator, reader PaymentReader, logger *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{links: links, reader: reader, logger: logger}
}

func (h *PaymentsHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var req payments.LinkRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if fields := req.Validate(); fields != nil {
		httpx.WriteValidation(w, fields)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > 255 {
		httpx.WriteValidation(w, map[string]string{IdempotencyHeader: "too long"})
		return
	}
	pay, err := h.links.CreateLink(r.Context(), p.ClinicID, p.UserID, key, req)
	switch {
	case errors.Is(err, payments.ErrKeyReused):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, err.Error())
	case errors.Is(err, payments.ErrProvider):
		httpx.WriteError(w, http.StatusBadGateway, httpx.CodeUpstream, "payment provider failure")
	case err != nil:
		h.logger.Error("create payment link failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	default:
		httpx.WriteJSON(w, http.StatusCreated, pay)
	}
}

func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	rows, err := h.reader.List(r.Context(), p.ClinicID, payments.ListLimit)
	if err != nil {
		h.logger.Error("list payments failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
		return
	}
	if rows == nil {
		rows = []payments.Payment{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *PaymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	pay, err := h.reader.Get(r.Context(), p.ClinicID, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("get payment failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pay)
}
