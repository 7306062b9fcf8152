package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/auth"
	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/brdocs"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/password"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/storage"
)

// UserStore is implemented by storage.UserRepository.
type UserStore interface {
	Signup(ctx context.Context, in storage.SignupInput) (storage.User, error)
	ConfirmEmail(ctx context.Context, token string) (storage.User, error)
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
	GetInClinic(ctx context.Context, clinicID, id string) (storage.User, error)
	List(ctx context.Context, clinicID string) ([]storage.User, error)
	UpdateProfile(ctx context.Context, clinicID, userID, name string, p storage.Profile) (storage.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, hash string) error
	Invite(ctx context.Context, in storage.InviteInput) (storage.User, error)
	AcceptInvite(ctx context.Context, token, hash string) (storage.User, error)
	UpdatePermissions(ctx context.Context, clinicID, actorID, userID string, p authz.Permissions) error
	SetStatus(ctx context.Context, clinicID, actorID, userID string, s storage.Status) error
	Remove(ctx context.Context, clinicID, actorID, userID string) error
}

// SessionStore is implemented by sessions.RefreshRepository.
type SessionStore interface {
	Create(ctx context.Context, userID, rawToken string, expiresAt time.Time) error
	Rotate(ctx context.Context, oldRaw, newRaw string, expiresAt time.Time) (string, error)
	Revoke(ctx context.Context, rawToken string) error
}

type AuthHandler struct {
	signer     *auth.Signer
	users      UserStore
	sessions   SessionStore
	refreshTTL time.Duration
	logger     *slog.Logger
}

func NewAuthHandler(signer *auth.Signer, users UserStore, sessionStore SessionStore, refreshTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		signer:     signer,
		users:      users,
		sessions:   sessionStore,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

type signupRequest struct {
	ClinicName      string `json:"clinic_name"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Timezone        string `json:"timezone,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type profileRequest struct {
	Name    string          `json:"name"`
	Profile storage.Profile `json:"profile"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         storage.User `json:"user"`
}

type meResponse struct {
	User         storage.User          `json:"user"`
	Permissions  authz.Permissions     `json:"effective_permissions"`
	Capabilities map[authz.Action]bool `json:"capabilities"`
}

func normalizeEmail(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return s, false
	}
	return s, true
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	fields := map[string]string{}
	req.ClinicName = strings.TrimSpace(req.ClinicName)
	req.Name = strings.TrimSpace(req.Name)
	if req.ClinicName == "" {
		fields["clinic_name"] = "required"
	}
	if req.Name == "" {
		fields["name"] = "required"
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		fields["email"] = "invalid email"
	}
	if err := password.ValidatePair(req.Password, req.ConfirmPassword); err != nil {
		if err == password.ErrMismatch {
			fields["confirm_password"] = err.Error()
		} else {
			fields["password"] = err.Error()
		}
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			fields["timezone"] = "unknown timezone"
		}
	}
	if len(fields) > 0 {
		httpx.WriteValidation(w, fields)
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		writeStoreError(w, r, h.logger, "hash password", err)
		return
	}
	user, err := h.users.Signup(r.Context(), storage.SignupInput{
		ClinicName:   req.ClinicName,
		Timezone:     req.Timezone,
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		writeStoreError(w, r, h.logger, "signup", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"user":   user,
		"status": user.Status,
	})
}

func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		httpx.WriteValidation(w, map[string]string{"token": "required"})
		return
	}
	user, err := h.users.ConfirmEmail(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeStoreError(w, r, h.logger, "confirm email", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": user, "status": user.Status})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		httpx.WriteValidation(w, map[string]string{"email": "required", "password": "required"})
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if err == storage.ErrNotFound {
			_ = password.VerifyNone(req.Password)
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid credentials")
			return
		}
		writeStoreError(w, r, h.logger, "login lookup", err)
		return
	}
	if err := password.Verify(user.PasswordHash, req.Password); err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid credentials")
		return
	}
	switch user.Status {
	case storage.StatusPending:
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "email not confirmed")
		return
	case storage.StatusInactive:
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "account inactive")
		return
	}

	h.issueTokens(w, r, user)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, user storage.User) {
	access, exp, err := h.signer.Sign(user.Principal())
	if err != nil {
		writeStoreError(w, r, h.logger, "sign token", err)
		return
	}
	refresh, err := sessions.NewToken()
	if err != nil {
		writeStoreError(w, r, h.logger, "refresh token", err)
		return
	}
	if err := h.sessions.Create(r.Context(), user.ID, refresh, time.Now().Add(h.refreshTTL)); err != nil {
		writeStoreError(w, r, h.logger, "store refresh token", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    exp.UTC(),
		User:         user,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		httpx.WriteValidation(w, map[string]string{"refresh_token": "required"})
		return
	}

	access, refresh, user, err := h.rotate(r.Context(), req.RefreshToken)
	if err != nil {
		writeStoreError(w, r, h.logger, "refresh", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access.token,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    access.exp.UTC(),
		User:         user,
	})
}

type signed struct {
	token string
	exp   time.Time
}

// rotate swaps the refresh token first, then loads the user so that permission or status
// changes since the last login are reflected in the new access token.
func (h *AuthHandler) rotate(ctx context.Context, old string) (signed, string, storage.User, error) {
	fresh, err := sessions.NewToken()
	if err != nil {
		return signed{}, "", storage.User{}, err
	}
	userID, err := h.sessions.Rotate(ctx, old, fresh, time.Now().Add(h.refreshTTL))
	if err != nil {
		return signed{}, "", storage.User{}, err
	}
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if err == storage.ErrNotFound {
			return signed{}, "", storage.User{}, sessions.ErrInvalidRefresh
		}
		return signed{}, "", storage.User{}, err
	}
	if user.Status != storage.StatusActive {
		_ = h.sessions.Revoke(ctx, fresh)
		return signed{}, "", storage.User{}, sessions.ErrInvalidRefresh
	}
	token, exp, err := h.signer.Sign(user.Principal())
	if err != nil {
		return signed{}, "", storage.User{}, err
	}
	return signed{token: token, exp: exp}, fresh, user, nil
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		httpx.WriteValidation(w, map[string]string{"refresh_token": "required"})
		return
	}
	if err := h.sessions.Revoke(r.Context(), req.RefreshToken); err != nil {
		writeStoreError(w, r, h.logger, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's profile and the capability map the UI uses to show or hide
// features. It is computed with the same authz.Decide used to enforce requests.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	user, err := h.users.GetInClinic(r.Context(), p.ClinicID, p.UserID)
	if err != nil {
		writeStoreError(w, r, h.logger, "me", err)
		return
	}
	if user.Status != storage.StatusActive {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "account inactive")
		return
	}
	current := user.Principal()
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		User:         user,
		Permissions:  current.Effective(),
		Capabilities: authz.Evaluate(current),
	})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := authz.FromContext(r.Context())
	var req profileRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	prof := req.Profile
	fields := map[string]string{}
	if prof.CPFCNPJ != "" {
		if !brdocs.ValidCPFOrCNPJ(prof.CPFCNPJ) {
			fields["profile.cpf_cnpj"] = "invalid cpf/cnpj"
		}
		prof.CPFCNPJ = brdocs.Digits(prof.CPFCNPJ)
	}
	switch prof.PersonType {
	case "":
		prof.PersonType = "pf"
	case "pf", "pj":
	default:
		fields["profile.tipo_pessoa"] = "must be pf or pj"
	}
	if prof.Address.CEP != "" {
		cep, ok := brdocs.NormalizeCEP(prof.Address.CEP)
		if !ok {
			fields["profile.endereco.cep"] = "cep must have 8 digits"
		}
		prof.Address.CEP = cep
	}
	if prof.Address.UF != "" {
		prof.Address.UF = strings.ToUpper(strings.TrimSpace(prof.Address.UF))
		if len(prof.Address.UF) != 2 || !brdocs.ValidUF(prof.Address.UF) {
			fields["profile.endereco.uf"] = "uf must be a 2-letter state code"
		}
	}
	if len(fields) > 0 {
		httpx.WriteValidation(w, fields)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), p.ClinicID, p.UserID, strings.TrimSpace(req.Name), prof)
	if err != nil {
		writeStoreError(w, r, h.logger, "update profile", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		httpx.WriteValidation(w, map[string]string{"email": "invalid email"})
		return
	}
	if err := h.users.RequestPasswordReset(r.Context(), email); err != nil {
		writeStoreError(w, r, h.logger, "forgot password", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
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
	if err := h.users.ResetPassword(r.Context(), strings.TrimSpace(req.Token), hash); err != nil {
		writeStoreError(w, r, h.logger, "reset password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
