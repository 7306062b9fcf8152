package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
)

// Register mounts every auth-service route. Public routes are reachable without a token;
// everything else trusts the principal headers set by the gateway.
func Register(mux *http.ServeMux, a *AuthHandler, u *UsersHandler) {
	mux.HandleFunc("POST /api/v1/auth/signup", a.Signup)
	mux.HandleFunc("POST /api/v1/auth/confirm", a.Confirm)
	mux.HandleFunc("POST /api/v1/auth/login", a.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", a.Refresh)
	mux.HandleFunc("POST /api/v1/auth/password/forgot", a.ForgotPassword)
	mux.HandleFunc("POST /api/v1/auth/password/reset", a.ResetPassword)
	mux.HandleFunc("POST /api/v1/users/invite/accept", u.AcceptInvite)

	mux.Handle("POST /api/v1/auth/logout", authz.Authenticate(http.HandlerFunc(a.Logout)))
	mux.Handle("GET /api/v1/auth/me", authz.Authenticate(http.HandlerFunc(a.Me)))
	mux.Handle("PUT /api/v1/auth/me/profile", authz.Authenticate(http.HandlerFunc(a.UpdateProfile)))

	mux.Handle("GET /api/v1/users", guard(authz.ListUsers, u.List))
	mux.Handle("POST /api/v1/users/invite", guard(authz.InviteUsers, u.Invite))
	mux.Handle("GET /api/v1/users/audit", guard(authz.ViewAudit, u.Audit))
	mux.Handle("PUT /api/v1/users/{id}/permissions", guard(authz.ManagePermissions, u.UpdatePermissions))
	mux.Handle("PUT /api/v1/users/{id}/status", guard(authz.ChangeUserStatus, u.SetStatus))
	mux.Handle("DELETE /api/v1/users/{id}", guard(authz.RemoveUsers, u.Remove))
}

func guard(a authz.Action, h http.HandlerFunc) http.Handler {
	return authz.Authenticate(authz.Require(a)(h))
}
