package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
)

// Register mounts the LuzIA routes. Reading needs the luzia capability; writing settings
// is reserved to the clinic's master.
func Register(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /api/v1/luzia/settings", guard(authz.ViewLuzia, h.GetSettings))
	mux.Handle("PUT /api/v1/luzia/settings", guard(authz.ConfigureLuzia, h.PutSettings))
	mux.Handle("GET /api/v1/luzia/logs", guard(authz.ViewLuzia, h.ListLogs))
	mux.Handle("POST /api/v1/luzia/preview", guard(authz.ViewLuzia, h.Preview))
}

func guard(a authz.Action, h http.HandlerFunc) http.Handler {
	return authz.Authenticate(authz.Require(a)(h))
}
