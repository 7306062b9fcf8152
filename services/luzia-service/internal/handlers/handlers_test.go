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

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/luzia"
	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/store"
)

type fixture struct {
	mux   *http.ServeMux
	store *store.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := gorm.Open(sqlite.Open(":memory:"), store.Config(logger))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New(db)
	mux := http.NewServeMux()
	Register(mux, New(s, s, s, logger))
	return fixture{mux: mux, store: s}
}

func principal(role authz.Role, caps ...authz.Capability) authz.Principal {
	var perms authz.Permissions
	for _, c := range caps {
		perms.Set(c, true)
	}
	return authz.Principal{UserID: "u1", ClinicID: "c1", Role: role, Permissions: perms}
}

func (f fixture) do(p authz.Principal, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	p.WriteHeaders(req.Header)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestSettingsReadMaskedWriteMasterOnly(t *testing.T) {
	f := newFixture(t)
	master := principal(authz.RoleMaster)
	staff := principal(authz.RoleUser, authz.Luzia)

	body := `{"ativo":true,"confirmacao_agendamento":true,"telefone_whatsapp":"11988887777","api_key_whatsapp":"sk-live-abcd9876"}`
	if rec := f.do(staff, http.MethodPut, "/api/v1/luzia/settings", body); rec.Code != http.StatusForbidden {
		t.Fatalf("non-master write: expected 403, got %d", rec.Code)
	}
	rec := f.do(master, http.MethodPut, "/api/v1/luzia/settings", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("master write: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(staff, http.MethodGet, "/api/v1/luzia/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rec.Code)
	}
	var got luzia.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WhatsAppAPIKey != "****9876" || !got.Enabled || got.ConfirmLeadHours != 24 {
		t.Fatalf("unexpected settings: %+v", got)
	}

	// Sending the masked key back keeps the stored secret.
	rec = f.do(master, http.MethodPut, "/api/v1/luzia/settings", `{"ativo":true,"telefone_whatsapp":"11988887777","api_key_whatsapp":"****9876"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rewrite: %d", rec.Code)
	}
	stored, _ := f.store.Settings(context.Background(), "c1")
	if stored.WhatsAppAPIKey != "sk-live-abcd9876" {
		t.Fatalf("stored key changed to %q", stored.WhatsAppAPIKey)
	}

	if rec := f.do(principal(authz.RoleUser), http.MethodGet, "/api/v1/luzia/settings", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("user without luzia: expected 403, got %d", rec.Code)
	}
}

func TestSettingsValidation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(principal(authz.RoleMaster), http.MethodPut, "/api/v1/luzia/settings", `{"ativo":true,"antecedencia_confirmacao_horas":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "antecedencia_confirmacao_horas") {
		t.Fatalf("expected field error, got %s", rec.Body.String())
	}
}

func TestLogsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_ = f.store.AppendLog(context.Background(), luzia.LogEntry{ClinicID: "c1", Action: luzia.ActionConfirm, Status: luzia.LogSuccess})
	}
	staff := principal(authz.RoleUser, authz.Luzia)

	rec := f.do(staff, http.MethodGet, "/api/v1/luzia/logs?limit=2", "")
	var resp struct {
		Items []luzia.LogEntry `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d (%v)", len(resp.Items), err)
	}
	if rec := f.do(staff, http.MethodGet, "/api/v1/luzia/logs?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rec.Code)
	}
	if rec := f.do(staff, http.MethodGet, "/api/v1/luzia/logs?limit=1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("large limit is clamped, got %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	_ = f.store.UpsertClinic(context.Background(), "c1", "Sorriso", "")
	rec := f.do(principal(authz.RoleUser, authz.Luzia), http.MethodPost, "/api/v1/luzia/preview", `{"template":"{paciente} na {clinica} {x}"}`)
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp["mensagem"] != "Maria Silva na Sorriso {x}" {
		t.Fatalf("unexpected preview %d %v", rec.Code, resp)
	}
}
