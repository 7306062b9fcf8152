package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/password"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/storage"
)

// AuditLog is implemented by audit.Repository.
type AuditLog interface {
	ListRecent(ctx context.Context, clinicID string, limit int) ([]audit.Event, error)
}

type UsersHandler struct {
	users  UserStore
	audit  AuditLog
	logger *slog.Logger
}

func NewUsersHandler(users UserStore, auditLog AuditLog, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{users: users, audit: auditLog, logger: logger}
}

type inviteRequest struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

type acceptRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// parseFlags converts a JSON permission object, rejecting unknown keys so a typo never
// silently drops a grant.
func parseFlags(in map[string]bool, base authz.Permissions) (authz.Permissions, map[string]string) {
	out := base
	var fields map[string]string
	for k, v := range in {
		c, ok := authz.ParseCapability(k)
		if !ok {
			if fields == nil {
				fields = map[string]string{}
			}
			fields["permissions."+k] = "unknown permission"
			continue
		}
		out.Set(c, v)
	}
	return out, fields
}

// current reloads the actor so a permission revoked or an account deactivated after the
// access token was issued takes effect on user administration at once.
func (h *UsersHandler) current(w http.ResponseWriter, r *http.Request, a authz.Action) (authz.Principal, bool) {
	claimed, _ := authz.FromContext(r.Context())
	user, err := h.users.GetInClinic(r.Context(), claimed.ClinicID, claimed.UserID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && user.Status != storage.StatusActive) {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "unauthenticated")
		return authz.Principal{}, false
	}
	if err != nil {
		writeStoreError(w, r, h.logger, "load actor", err)
		return authz.Principal{}, false
	}
	actor := user.Principal()
	if err := authz.Decide(actor, a).Err(); err != nil {
		authz.WriteDenied(w, err)
		return authz.Principal{}, false
	}
	return actor, true
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	users, err := h.users.List(r.Context(), p.ClinicID)
	if err != nil {
		writeStoreError(w, r, h.logger, "list users", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Invite creates a pending manager or user. The stored permissions never exceed what the
// inviter holds, and only managers keep the user-administration flags.
func (h *UsersHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.current(w, r, authz.InviteUsers)
	if !ok {
		return
	}
	var req inviteRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	fields := map[string]string{}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		fields["name"] = "required"
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		fields["email"] = "invalid email"
	}
	role, ok := authz.ParseRole(req.Role)
	if req.Role == "" {
		role, ok = authz.RoleUser, true
	}
	if !ok || role == authz.RoleMaster {
		fields["role"] = "must be manager or user"
	}
	requested, bad := parseFlags(req.Permissions, storage.DefaultInvitePermissions())
	for k, v := range bad {
		fields[k] = v
	}
	if len(fields) > 0 {
		httpx.WriteValidation(w, fields)
		return
	}
	if !authz.CanActOn(actor, role) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "cannot invite a user with this role")
		return
	}

	user, err := h.users.Invite(r.Context(), storage.InviteInput{
		ClinicID:    actor.ClinicID,
		ActorID:     actor.UserID,
		Name:        req.Name,
		Email:       email,
		Role:        role,
		Permissions: authz.Grantable(actor, role, requested),
	})
	if err != nil {
		writeStoreError(w, r, h.logger, "invite user", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *UsersHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		httpx.WriteValidation(w, map[string]string{"token": "required"})
		return
	}
	if err := password.ValidatePair(req.Password, req.ConfirmPassword); err != nil {
		httpx.WriteValidation(w, map[string]string{"password": err.Error()})
		return
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		writeStoreError(w, r, h.logger, "hash password", err)
		return
	}
	user, err := h.users.AcceptInvite(r.Context(), strings.TrimSpace(req.Token), hash)
	if err != nil {
		writeStoreError(w, r, h.logger, "accept invite", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

// target loads the user named in the path and checks the actor outranks them.
func (h *UsersHandler) target(w http.ResponseWriter, r *http.Request, actor authz.Principal) (storage.User, bool) {
	id := r.PathValue("id")
	if id == actor.UserID {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "cannot change your own account")
		return storage.User{}, false
	}
	user, err := h.users.GetInClinic(r.Context(), actor.ClinicID, id)
	if err != nil {
		writeStoreError(w, r, h.logger, "load user", err)
		return storage.User{}, false
	}
	if !authz.CanActOn(actor, user.Role) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "insufficient rank for this user")
		return storage.User{}, false
	}
	return user, true
}

func (h *UsersHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.current(w, r, authz.ManagePermissions)
	if !ok {
		return
	}
	var req map[string]bool
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	user, ok := h.target(w, r, actor)
	if !ok {
		return
	}
	requested, bad := parseFlags(req, user.Permissions)
	if len(bad) > 0 {
		httpx.WriteValidation(w, bad)
		return
	}
	granted := authz.Grantable(actor, user.Role, requested)
	if err := h.users.UpdatePermissions(r.Context(), actor.ClinicID, actor.UserID, user.ID, granted); err != nil {
		writeStoreError(w, r, h.logger, "update permissions", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "permissions": granted})
}

func (h *UsersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.current(w, r, authz.ChangeUserStatus)
	if !ok {
		return
	}
	var req statusRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	status, ok := storage.ParseStatus(req.Status)
	if !ok || status == storage.StatusPending {
		httpx.WriteValidation(w, map[string]string{"status": "must be active or inactive"})
		return
	}
	user, ok := h.target(w, r, actor)
	if !ok {
		return
	}
	if err := h.users.SetStatus(r.Context(), actor.ClinicID, actor.UserID, user.ID, status); err != nil {
		writeStoreError(w, r, h.logger, "set status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "status": status})
}

func (h *UsersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.current(w, r, authz.RemoveUsers)
	if !ok {
		return
	}
	user, ok := h.target(w, r, actor)
	if !ok {
		return
	}
	if err := h.users.Remove(r.Context(), actor.ClinicID, actor.UserID, user.ID); err != nil {
		writeStoreError(w, r, h.logger, "remove user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) Audit(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.FromContext(r.Context())
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	events, err := h.audit.ListRecent(r.Context(), actor.ClinicID, limit)
	if err != nil {
		writeStoreError(w, r, h.logger, "list audit", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
