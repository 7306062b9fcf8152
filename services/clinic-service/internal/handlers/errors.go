package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

type conflictBody struct {
	httpx.ErrorBody
	Conflicts []string `json:"conflitos"`
}

// writeStoreError maps domain and repository errors to responses. Anything unexpected is
// logged and answered with a generic 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	var (
		verr *model.ValidationError
		berr *agenda.BoundError
		cerr *storage.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteValidation(w, verr.Fields)
	case errors.As(err, &berr):
		httpx.WriteValidation(w, map[string]string{berr.Field: "invalid date"})
	case errors.As(err, &cerr):
		httpx.WriteJSON(w, http.StatusConflict, conflictBody{
			ErrorBody: httpx.ErrorBody{Error: "appointment overlaps another for this professional", Code: httpx.CodeConflict},
			Conflicts: cerr.IDs,
		})
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
	case errors.Is(err, storage.ErrInvalidReference):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "referenced record does not exist in this clinic")
	case errors.Is(err, storage.ErrInsufficientStock):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "insufficient stock")
	case errors.Is(err, storage.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "record already exists")
	case errors.Is(err, storage.ErrInvalid):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "value rejected")
	default:
		logger.Error(op+" failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
}
