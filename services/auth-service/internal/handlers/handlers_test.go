package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/auth"
	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/password"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/dentalcare/services/auth-service/internal/storage"
)

type fakeStore struct {
	users   map[string]storage.User
	invited []storage.InviteInput
	removed []string
}

func newFakeStore(users ...storage.User) *fakeStore {
	s := &fakeStore{users: map[string]storage.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) Signup(_ context.Context, in storage.SignupInput) (storage.User, error) {
	for _, u := range s.users {
		if u.Email == in.Email {
			return storage.User{}, storage.ErrEmailTaken
		}
	}
	u := storage.User{ID: "new-user", ClinicID: "new-clinic", Name: in.Name, Email: in.Email, PasswordHash: in.PasswordHash,
		Role: authz.RoleMaster, Status: storage.StatusPending, Permissions: authz.Full()}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) ConfirmEmail(context.Context, string) (storage.User, error) {
	return storage.User{}, storage.ErrInvalidToken
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (storage.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id string) (storage.User, error) {
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetInClinic(ctx context.Context, clinicID, id string) (storage.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil || u.ClinicID != clinicID {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) List(_ context.Context, clinicID string) ([]storage.User, error) {
	var out []storage.User
	for _, u := range s.users {
		if u.ClinicID == clinicID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateProfile(_ context.Context, _, userID, _ string, p storage.Profile) (storage.User, error) {
	u := s.users[userID]
	u.Profile = p
	s.users[userID] = u
	return u, nil
}

func (s *fakeStore) RequestPasswordReset(context.Context, string) error { return nil }

func (s *fakeStore) ResetPassword(context.Context, string, string) error { return nil }

func (s *fakeStore) Invite(_ context.Context, in storage.InviteInput) (storage.User, error) {
	s.invited = append(s.invited, in)
	return storage.User{ID: "invited", ClinicID: in.ClinicID, Email: in.Email, Role: in.Role,
		Status: storage.StatusPending, Permissions: in.Permissions}, nil
}

func (s *fakeStore) AcceptInvite(context.Context, string, string) (storage.User, error) {
	return storage.User{}, storage.ErrInvalidToken
}

func (s *fakeStore) UpdatePermissions(_ context.Context, _, _, userID string, p authz.Permissions) error {
	u := s.users[userID]
	u.Permissions = p
	s.users[userID] = u
	return nil
}

func (s *fakeStore) SetStatus(_ context.Context, _, _, userID string, st storage.Status) error {
	u := s.users[userID]
	u.Status = st
	s.users[userID] = u
	return nil
}

func (s *fakeStore) Remove(_ context.Context, _, _, userID string) error {
	s.removed = append(s.removed, userID)
	delete(s.users, userID)
	return nil
}

type fakeSessions struct {
	owners map[string]string
}

func (f *fakeSessions) Create(_ context.Context, userID, raw string, _ time.Time) error {
	f.owners[raw] = userID
	return nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldRaw, newRaw string, _ time.Time) (string, error) {
	owner, ok := f.owners[oldRaw]
	if !ok {
		return "", sessions.ErrInvalidRefresh
	}
	delete(f.owners, oldRaw)
	f.owners[newRaw] = owner
	return owner, nil
}

func (f *fakeSessions) Revoke(_ context.Context, raw string) error {
	delete(f.owners, raw)
	return nil
}

type fakeAudit struct{}

func (fakeAudit) ListRecent(context.Context, string, int) ([]audit.Event, error) {
	return []audit.Event{}, nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := password.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}

type fixture struct {
	mux      *http.ServeMux
	store    *fakeStore
	sessions *fakeSessions
	signer   *auth.Signer
}

func newFixture(t *testing.T, users ...storage.User) fixture {
	t.Helper()
	store := newFakeStore(users...)
	sess := &fakeSessions{owners: map[string]string{}}
	signer := auth.NewSigner("test-secret", "dentalcare", time.Hour)
	mux := http.NewServeMux()
	Register(mux,
		NewAuthHandler(signer, store, sess, 24*time.Hour, discardLogger()),
		NewUsersHandler(store, fakeAudit{}, discardLogger()),
	)
	return fixture{mux: mux, store: store, sessions: sess, signer: signer}
}

func (f fixture) do(method, path, body string, as *authz.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		as.WriteHeaders(req.Header)
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func activeUser(t *testing.T, id string, role authz.Role, caps ...authz.Capability) storage.User {
	var p authz.Permissions
	for _, c := range caps {
		p.Set(c, true)
	}
	return storage.User{
		ID: id, ClinicID: "clinic-1", Name: id, Email: id + "@clinic.test",
		PasswordHash: mustHash(t, "Abc123!!"), Role: role, Status: storage.StatusActive, Permissions: p,
	}
}

func TestLoginWrongPasswordReturns401WithoutTokens(t *testing.T) {
	f := newFixture(t, activeUser(t, "ana", authz.RoleUser, authz.Agenda))
	rr := f.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ana@clinic.test","password":"Wrong123!"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "access_token") {
		t.Fatalf("no tokens expected in %s", rr.Body.String())
	}
	if len(f.sessions.owners) != 0 {
		t.Fatalf("no refresh token should be stored")
	}
}

func TestLoginUnknownEmailReturns401(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ghost@clinic.test","password":"Abc123!!"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestLoginPendingReturns403(t *testing.T) {
	u := activeUser(t, "bia", authz.RoleUser)
	u.Status = storage.StatusPending
	f := newFixture(t, u)
	rr := f.do(http.MethodPost, "/api/v1/auth/login", `{"email":"bia@clinic.test","password":"Abc123!!"}`, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestLoginIssuesVerifiableTokensAndRefreshRotates(t *testing.T) {
	f := newFixture(t, activeUser(t, "ana", authz.RoleUser, authz.Agenda, authz.CriarUsuarios))
	rr := f.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ana@clinic.test","password":"Abc123!!"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body tokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := f.signer.Parse(body.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	p, err := claims.Principal()
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if p.UserID != "ana" || !p.Permissions.Agenda || p.Permissions.CriarUsuarios {
		t.Fatalf("unexpected principal %+v", p)
	}

	rr = f.do(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+body.RefreshToken+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d", rr.Code)
	}
	rr = f.do(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+body.RefreshToken+`"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token must fail, got %d", rr.Code)
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/api/v1/auth/signup",
		`{"clinic_name":"Sorriso","name":"Dra. Ana","email":"ana@sorriso.test","password":"abc12345","confirm_password":"abc12345"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Fields["password"] == "" {
		t.Fatalf("expected password field error, got %s", rr.Body.String())
	}
}

func TestSignupRejectsPasswordOverBcryptLimit(t *testing.T) {
	f := newFixture(t)
	pw := "Abc123!!" + strings.Repeat("a", 70)
	rr := f.do(http.MethodPost, "/api/v1/auth/signup",
		`{"clinic_name":"Sorriso","name":"Dra. Ana","email":"ana@sorriso.test","password":"`+pw+`","confirm_password":"`+pw+`"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), password.ErrTooLong.Error()) {
		t.Fatalf("expected length message, got %s", rr.Body.String())
	}
}

func TestSignupCreatesPendingMaster(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/api/v1/auth/signup",
		`{"clinic_name":"Sorriso","name":"Dra. Ana","email":"Ana@Sorriso.test","password":"Abc123!!","confirm_password":"Abc123!!"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	u := f.store.users["new-user"]
	if u.Email != "ana@sorriso.test" || u.Status != storage.StatusPending || u.Role != authz.RoleMaster {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestManagerInviteIsLimitedToOwnPermissions(t *testing.T) {
	manager := activeUser(t, "gerente", authz.RoleManager, authz.Dashboard, authz.Pacientes, authz.CriarUsuarios)
	f := newFixture(t, manager)
	p := manager.Principal()
	rr := f.do(http.MethodPost, "/api/v1/users/invite",
		`{"name":"Caio","email":"caio@clinic.test","role":"user","permissions":{"pacientes":true,"financeiro":true}}`, &p)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(f.store.invited) != 1 {
		t.Fatalf("expected one invite")
	}
	got := f.store.invited[0].Permissions
	if got.Financeiro {
		t.Fatalf("financeiro must be stored false")
	}
	if !got.Pacientes || !got.Dashboard {
		t.Fatalf("expected pacientes and default dashboard, got %+v", got)
	}
}

func TestManagerCannotInviteManager(t *testing.T) {
	manager := activeUser(t, "gerente", authz.RoleManager, authz.CriarUsuarios)
	f := newFixture(t, manager)
	p := manager.Principal()
	rr := f.do(http.MethodPost, "/api/v1/users/invite", `{"name":"Outro","email":"o@clinic.test","role":"manager"}`, &p)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOnlyMasterRemovesUsers(t *testing.T) {
	master := activeUser(t, "dona", authz.RoleMaster)
	manager := activeUser(t, "gerente", authz.RoleManager, authz.CriarUsuarios, authz.GerenciarPermissoes)
	staff := activeUser(t, "staff", authz.RoleUser)
	f := newFixture(t, master, manager, staff)

	mp := manager.Principal()
	if rr := f.do(http.MethodDelete, "/api/v1/users/staff", "", &mp); rr.Code != http.StatusForbidden {
		t.Fatalf("manager delete: expected 403, got %d", rr.Code)
	}
	op := master.Principal()
	if rr := f.do(http.MethodDelete, "/api/v1/users/dona", "", &op); rr.Code != http.StatusForbidden {
		t.Fatalf("self delete: expected 403, got %d", rr.Code)
	}
	if rr := f.do(http.MethodDelete, "/api/v1/users/staff", "", &op); rr.Code != http.StatusNoContent {
		t.Fatalf("master delete: expected 204, got %d", rr.Code)
	}
	if len(f.store.removed) != 1 || f.store.removed[0] != "staff" {
		t.Fatalf("unexpected removals %v", f.store.removed)
	}
}

func TestMeCapabilitiesMatchDecide(t *testing.T) {
	u := activeUser(t, "ana", authz.RoleUser, authz.Agenda, authz.Estoque)
	f := newFixture(t, u)
	p := u.Principal()
	rr := f.do(http.MethodGet, "/api/v1/auth/me", "", &p)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, a := range authz.AllActions {
		if body.Capabilities[a] != authz.Decide(p, a).Allowed {
			t.Fatalf("capability %s disagrees with Decide", a)
		}
	}
}

func TestProtectedRouteWithoutPrincipal(t *testing.T) {
	f := newFixture(t)
	if rr := f.do(http.MethodGet, "/api/v1/users", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUpdateProfileValidatesDocuments(t *testing.T) {
	u := activeUser(t, "ana", authz.RoleUser)
	f := newFixture(t, u)
	p := u.Principal()
	rr := f.do(http.MethodPut, "/api/v1/auth/me/profile",
		`{"name":"Ana","profile":{"cpf_cnpj":"123.456.789-00","endereco":{"cep":"123","uf":"SPX"}}}`, &p)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = f.do(http.MethodPut, "/api/v1/auth/me/profile",
		`{"name":"Ana","profile":{"cpf_cnpj":"529.982.247-25","endereco":{"cep":"01310-100","uf":"sp"}}}`, &p)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := f.store.users["ana"].Profile; got.CPFCNPJ != "52998224725" || got.Address.CEP != "01310100" || got.Address.UF != "SP" {
		t.Fatalf("unexpected stored profile %+v", got)
	}
}

func TestRevokedPermissionTakesEffectBeforeTokenExpires(t *testing.T) {
	manager := activeUser(t, "gerente", authz.RoleManager, authz.CriarUsuarios, authz.GerenciarPermissoes)
	staff := activeUser(t, "staff", authz.RoleUser)
	f := newFixture(t, manager, staff)
	p := manager.Principal()

	revoked := f.store.users["gerente"]
	revoked.Permissions.Set(authz.GerenciarPermissoes, false)
	f.store.users["gerente"] = revoked

	rr := f.do(http.MethodPut, "/api/v1/users/staff/permissions", `{"pacientes":true}`, &p)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if f.store.users["staff"].Permissions.Pacientes {
		t.Fatalf("permissions must not change")
	}
}

func TestDeactivatedActorCannotInvite(t *testing.T) {
	manager := activeUser(t, "gerente", authz.RoleManager, authz.CriarUsuarios)
	f := newFixture(t, manager)
	p := manager.Principal()

	inactive := f.store.users["gerente"]
	inactive.Status = storage.StatusInactive
	f.store.users["gerente"] = inactive

	rr := f.do(http.MethodPost, "/api/v1/users/invite", `{"name":"Caio","email":"caio@clinic.test"}`, &p)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if len(f.store.invited) != 0 {
		t.Fatalf("invite must not be stored")
	}
}
