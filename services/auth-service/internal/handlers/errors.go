package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/storage"
)

// writeStoreError maps repository errors to responses. Anything unexpected is logged and
// answered with a generic 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "user not found")
	case errors.Is(err, storage.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "email already registered")
	case errors.Is(err, storage.ErrInvalidToken):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "invalid or expired token")
	case errors.Is(err, sessions.ErrInvalidRefresh):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid refresh token")
	default:
		logger.Error(op+" failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
}
