package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/cep"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/search"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/storage"
)

// memStore keeps rows per clinic in insertion order.
type memStore[T any] struct {
	rows  map[string][]T
	next  int
	setID func(*T, string)
	id    func(T) string
}

func newMemStore[T any](setID func(*T, string), id func(T) string) *memStore[T] {
	return &memStore[T]{rows: map[string][]T{}, setID: setID, id: id}
}

func (s *memStore[T]) List(_ context.Context, clinicID string) ([]T, error) {
	return append([]T(nil), s.rows[clinicID]...), nil
}

func (s *memStore[T]) Get(_ context.Context, clinicID, id string) (T, error) {
	for _, row := range s.rows[clinicID] {
		if s.id(row) == id {
			return row, nil
		}
	}
	var zero T
	return zero, storage.ErrNotFound
}

func (s *memStore[T]) Create(_ context.Context, clinicID string, in T) (T, error) {
	s.next++
	s.setID(&in, "id-"+strconv.Itoa(s.next))
	s.rows[clinicID] = append(s.rows[clinicID], in)
	return in, nil
}

func (s *memStore[T]) Update(_ context.Context, clinicID, id string, in T) (T, error) {
	for i, row := range s.rows[clinicID] {
		if s.id(row) == id {
			s.setID(&in, id)
			s.rows[clinicID][i] = in
			return in, nil
		}
	}
	var zero T
	return zero, storage.ErrNotFound
}

func (s *memStore[T]) Delete(_ context.Context, clinicID, id string) error {
	rows := s.rows[clinicID]
	for i, row := range rows {
		if s.id(row) == id {
			s.rows[clinicID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

type memInventory struct {
	*memStore[model.InventoryItem]
}

func (m memInventory) Find(ctx context.Context, clinicID string, q storage.ItemQuery) ([]model.InventoryItem, error) {
	rows, _ := m.List(ctx, clinicID)
	if q.LowStock {
		rows = model.LowStock(rows)
	}
	return rows, nil
}

func (m memInventory) ApplyMovement(ctx context.Context, clinicID, itemID, actorID string, mv model.StockMovement) (model.InventoryItem, model.StockMovement, error) {
	item, err := m.Get(ctx, clinicID, itemID)
	if err != nil {
		return item, mv, err
	}
	next := mv.Apply(item.CurrentQty)
	if next < 0 {
		return item, mv, storage.ErrInsufficientStock
	}
	item.CurrentQty = next
	item.Derive()
	_, err = m.Update(ctx, clinicID, itemID, item)
	mv.ItemID, mv.ActorID = itemID, actorID
	return item, mv, err
}

func (memInventory) Movements(context.Context, string, string, int) ([]model.StockMovement, error) {
	return nil, nil
}

type fakeAppointments struct {
	rows     []model.AppointmentView
	conflict []string
	from, to time.Time
}

func (f *fakeAppointments) List(_ context.Context, _ string, from, to time.Time) ([]model.AppointmentView, error) {
	f.from, f.to = from, to
	return f.rows, nil
}

func (f *fakeAppointments) Get(_ context.Context, _, id string) (model.AppointmentView, error) {
	for _, a := range f.rows {
		if a.ID == id {
			return a, nil
		}
	}
	return model.AppointmentView{}, storage.ErrNotFound
}

func (f *fakeAppointments) Create(_ context.Context, clinicID string, in model.Appointment) (storage.WriteResult, error) {
	if len(f.conflict) > 0 {
		return storage.WriteResult{}, &storage.ConflictError{IDs: f.conflict}
	}
	in.ID, in.ClinicID = "new", clinicID
	return storage.WriteResult{Appointment: model.AppointmentView{Appointment: in}}, nil
}

func (f *fakeAppointments) Update(ctx context.Context, clinicID, _ string, in model.Appointment) (storage.WriteResult, error) {
	return f.Create(ctx, clinicID, in)
}

func (f *fakeAppointments) SetStatus(context.Context, string, string, model.AppointmentStatus) (storage.WriteResult, error) {
	return storage.WriteResult{}, storage.ErrNotFound
}

func (f *fakeAppointments) Delete(context.Context, string, string) error { return nil }

type fixedZone string

func (z fixedZone) Timezone(context.Context, string) (string, error) { return string(z), nil }

type memConfig struct {
	blobs map[model.ConfigCategory]json.RawMessage
}

func (m *memConfig) All(context.Context, string) (map[model.ConfigCategory]json.RawMessage, error) {
	return m.blobs, nil
}

func (m *memConfig) Get(_ context.Context, _ string, cat model.ConfigCategory) (json.RawMessage, error) {
	b, ok := m.blobs[cat]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *memConfig) Put(_ context.Context, _, _ string, cat model.ConfigCategory, data json.RawMessage) error {
	m.blobs[cat] = data
	return nil
}

func (m *memConfig) MergeKey(_ context.Context, _, _ string, cat model.ConfigCategory, key string, value any) error {
	blob := map[string]any{}
	if raw, ok := m.blobs[cat]; ok {
		_ = json.Unmarshal(raw, &blob)
	}
	blob[key] = value
	raw, err := json.Marshal(blob)
	m.blobs[cat] = raw
	return err
}

type namedPatients []model.Patient

func (n namedPatients) SearchByName(_ context.Context, _, q string, limit int) ([]model.Patient, error) {
	var out []model.Patient
	for _, p := range n {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(q)) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type noProfessionals struct{}

func (noProfessionals) SearchByName(context.Context, string, string, int) ([]model.Professional, error) {
	return nil, nil
}

type stubAddress struct{}

func (stubAddress) Lookup(_ context.Context, raw string) (cep.Address, error) {
	if raw == "01001000" {
		return cep.Address{CEP: "01001-000", City: "São Paulo", UF: "SP"}, nil
	}
	if len(raw) != 8 {
		return cep.Address{}, cep.ErrInvalid
	}
	return cep.Address{}, cep.ErrNotFound
}

type staticInsurers struct{}

func (staticInsurers) List(context.Context) []insurance.Insurer { return insurance.Insurers() }
func (staticInsurers) Plans(_ context.Context, id string) []insurance.Plan {
	return insurance.PlansOf(id)
}

type stubSummary struct{ start, end time.Time }

func (s *stubSummary) Summary(_ context.Context, _ string, start, end time.Time) (storage.Summary, error) {
	s.start, s.end = start, end
	return storage.Summary{Patients: 3}, nil
}

type fixture struct {
	handler      http.Handler
	patients     *memStore[model.Patient]
	inventory    memInventory
	appointments *fakeAppointments
	config       *memConfig
	summary      *stubSummary
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMemStore(func(p *model.Patient, id string) { p.ID = id }, func(p model.Patient) string { return p.ID }),
		inventory: memInventory{newMemStore(func(i *model.InventoryItem, id string) { i.ID = id },
			func(i model.InventoryItem) string { return i.ID })},
		appointments: &fakeAppointments{},
		config:       &memConfig{blobs: map[model.ConfigCategory]json.RawMessage{}},
		summary:      &stubSummary{},
	}
	pat := namedPatients{{ID: "p1", Name: "Maria Souza"}, {ID: "p2", Name: "Mariana Lima"}}
	f.handler = NewRouter(Deps{
		Patients:      f.patients,
		Professionals: newMemStore(func(p *model.Professional, id string) { p.ID = id }, func(p model.Professional) string { return p.ID }),
		Services:      newMemStore(func(s *model.Service, id string) { s.ID = id }, func(s model.Service) string { return s.ID }),
		Categories:    newMemStore(func(c *model.Category, id string) { c.ID = id }, func(c model.Category) string { return c.ID }),
		Suppliers:     newMemStore(func(s *model.Supplier, id string) { s.ID = id }, func(s model.Supplier) string { return s.ID }),
		Inventory:     f.inventory,
		Appointments:  f.appointments,
		Zones:         fixedZone("America/Sao_Paulo"),
		Config:        f.config,
		Search:        search.NewService(pat, noProfessionals{}, search.NewMemoryTracker()),
		Address:       stubAddress{},
		Insurers:      staticInsurers{},
		Summary:       f.summary,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

var master = authz.Principal{UserID: "u-master", ClinicID: "c1", Role: authz.RoleMaster}

func (f *fixture) do(t *testing.T, p authz.Principal, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if p.UserID != "" {
		p.WriteHeaders(req.Header)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeItems[T any](t *testing.T, rec *httptest.ResponseRecorder) []T {
	t.Helper()
	var body struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return body.Items
}

func TestPatientCRUDRoundTrip(t *testing.T) {
	f := newFixture()
	before := decodeItems[model.Patient](t, f.do(t, master, http.MethodGet, "/api/v1/patients", ""))

	rec := f.do(t, master, http.MethodPost, "/api/v1/patients", `{"nome":" Ana Paula ","email":"ANA@EXAMPLE.COM"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created model.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	after := decodeItems[model.Patient](t, f.do(t, master, http.MethodGet, "/api/v1/patients", ""))
	if len(after) != len(before)+1 {
		t.Fatalf("expected %d patients, got %d", len(before)+1, len(after))
	}
	got := after[len(after)-1]
	if got.Name != "Ana Paula" || got.Email == nil || *got.Email != "ana@example.com" || got.Status != model.PatientActive {
		t.Fatalf("unexpected stored patient: %+v", got)
	}

	if rec := f.do(t, master, http.MethodDelete, "/api/v1/patients/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	final := decodeItems[model.Patient](t, f.do(t, master, http.MethodGet, "/api/v1/patients", ""))
	if len(final) != len(before) {
		t.Fatalf("expected %d patients after delete, got %d", len(before), len(final))
	}
	if rec := f.do(t, master, http.MethodGet, "/api/v1/patients/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestPatientValidationFailure(t *testing.T) {
	f := newFixture()
	rec := f.do(t, master, http.MethodPost, "/api/v1/patients", `{"nome":"","cpf":"111.111.111-11"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Fields["nome"] == "" || body.Fields["cpf"] == "" {
		t.Fatalf("expected nome and cpf field errors, got %v", body.Fields)
	}
}

func TestTenantComesFromPrincipal(t *testing.T) {
	f := newFixture()
	f.do(t, master, http.MethodPost, "/api/v1/patients", `{"nome":"Ana","clinic_id":"c2"}`)
	other := authz.Principal{UserID: "u2", ClinicID: "c2", Role: authz.RoleMaster}
	if rows := decodeItems[model.Patient](t, f.do(t, other, http.MethodGet, "/api/v1/patients", "")); len(rows) != 0 {
		t.Fatalf("clinic c2 must not see clinic c1 rows, got %d", len(rows))
	}
}

func TestPermissionsEnforced(t *testing.T) {
	f := newFixture()
	var perms authz.Permissions
	perms.Set(authz.Agenda, true)
	user := authz.Principal{UserID: "u3", ClinicID: "c1", Role: authz.RoleUser, Permissions: perms}

	if rec := f.do(t, user, http.MethodGet, "/api/v1/patients", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without pacientes, got %d", rec.Code)
	}
	if rec := f.do(t, user, http.MethodGet, "/api/v1/appointments", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with agenda, got %d", rec.Code)
	}
	if rec := f.do(t, authz.Principal{}, http.MethodGet, "/api/v1/appointments", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %d", rec.Code)
	}
}

func TestInventoryLowStockFilter(t *testing.T) {
	f := newFixture()
	for _, body := range []string{
		`{"nome":"Luvas","quantidade_atual":2,"quantidade_minima":5}`,
		`{"nome":"Anestésico","quantidade_atual":"10,5","quantidade_minima":5}`,
	} {
		if rec := f.do(t, master, http.MethodPost, "/api/v1/inventory/items", body); rec.Code != http.StatusCreated {
			t.Fatalf("create item: %d %s", rec.Code, rec.Body.String())
		}
	}
	low := decodeItems[model.InventoryItem](t, f.do(t, master, http.MethodGet, "/api/v1/inventory/items?em_falta=true", ""))
	if len(low) != 1 || low[0].Name != "Luvas" || !low[0].LowStock {
		t.Fatalf("expected only Luvas in low stock, got %+v", low)
	}
}

func TestStockMovementRejectsNegative(t *testing.T) {
	f := newFixture()
	f.do(t, master, http.MethodPost, "/api/v1/inventory/items", `{"nome":"Luvas","quantidade_atual":2,"quantidade_minima":5}`)
	rec := f.do(t, master, http.MethodPost, "/api/v1/inventory/items/id-1/movements", `{"tipo":"saida","quantidade":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d", rec.Code)
	}
	rec = f.do(t, master, http.MethodPost, "/api/v1/inventory/items/id-1/movements", `{"tipo":"entrada","quantidade":8}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAppointmentListFilters(t *testing.T) {
	f := newFixture()
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	f.appointments.rows = []model.AppointmentView{
		{Appointment: model.Appointment{ID: "a1", Title: "Limpeza", StartsAt: time.Date(2024, 5, 10, 9, 0, 0, 0, loc), Type: model.TypeConsulta}, PatientName: "MARIA"},
		{Appointment: model.Appointment{ID: "a2", Title: "Canal", StartsAt: time.Date(2024, 5, 10, 15, 0, 0, 0, loc), Type: model.TypeProcedimento}, PatientName: "João"},
	}
	rows := decodeItems[model.AppointmentView](t, f.do(t, master, http.MethodGet,
		"/api/v1/appointments?q=maria&data_inicio=2024-05-10&data_fim=2024-05-10", ""))
	if len(rows) != 1 || rows[0].ID != "a1" {
		t.Fatalf("expected a1 only, got %+v", rows)
	}
	if want := time.Date(2024, 5, 10, 23, 59, 59, 0, loc); !f.appointments.to.Equal(want) {
		t.Fatalf("expected upper bound %v, got %v", want, f.appointments.to)
	}

	if rec := f.do(t, master, http.MethodGet, "/api/v1/appointments?data_inicio=ontem", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad bound, got %d", rec.Code)
	}
	if rec := f.do(t, master, http.MethodGet, "/api/v1/appointments?tipo=cirurgia", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestAppointmentDayView(t *testing.T) {
	f := newFixture()
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	f.appointments.rows = []model.AppointmentView{
		{Appointment: model.Appointment{ID: "a1", Title: "Limpeza", StartsAt: time.Date(2024, 5, 10, 14, 3, 0, 0, loc)}},
	}
	rec := f.do(t, master, http.MethodGet, "/api/v1/appointments/day?data=2024-05-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var day struct {
		Slots []struct {
			Hour   int               `json:"hora"`
			Events []json.RawMessage `json:"eventos"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &day); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(day.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(day.Slots))
	}
	for _, s := range day.Slots {
		if (s.Hour == 14) != (len(s.Events) == 1) {
			t.Fatalf("slot %d has %d events", s.Hour, len(s.Events))
		}
	}
}

func TestAppointmentConflictBody(t *testing.T) {
	f := newFixture()
	f.appointments.conflict = []string{"a9"}
	rec := f.do(t, master, http.MethodPost, "/api/v1/appointments",
		`{"titulo":"Consulta","data_inicio":"2024-05-10T09:00:00-03:00","data_fim":"2024-05-10T10:00:00-03:00"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body struct {
		Conflicts []string `json:"conflitos"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Conflicts) != 1 || body.Conflicts[0] != "a9" {
		t.Fatalf("expected conflitos [a9], got %v", body.Conflicts)
	}

	f.appointments.conflict = nil
	rec = f.do(t, master, http.MethodPost, "/api/v1/appointments",
		`{"titulo":"Consulta","data_inicio":"2024-05-10T09:00:00-03:00","data_fim":"2024-05-10T10:00:00-03:00"}`)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"conflitos":[]`) {
		t.Fatalf("expected 201 with empty conflitos, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestStaleSearchGeneration(t *testing.T) {
	f := newFixture()
	rec := f.do(t, master, http.MethodGet, "/api/v1/search?q=mari", "", GenerationHeader, "2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res search.Result
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if len(res.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %+v", res.Patients)
	}

	rec = f.do(t, master, http.MethodGet, "/api/v1/search?q=ma", "", GenerationHeader, "1")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), codeStaleSearch) {
		t.Fatalf("expected 409 stale_search, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestConfigBlobs(t *testing.T) {
	f := newFixture()
	if rec := f.do(t, master, http.MethodPut, "/api/v1/config/agenda", `[1,2]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object, got %d", rec.Code)
	}
	if rec := f.do(t, master, http.MethodPut, "/api/v1/config/inexistente", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown category, got %d", rec.Code)
	}
	if rec := f.do(t, master, http.MethodGet, "/api/v1/config/agenda", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first save, got %d", rec.Code)
	}
	if rec := f.do(t, master, http.MethodPut, "/api/v1/config/agenda", `{"bloquear_conflitos":true}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := f.do(t, master, http.MethodGet, "/api/v1/config/agenda", "")
	if !strings.Contains(rec.Body.String(), `"bloquear_conflitos":true`) {
		t.Fatalf("unexpected blob: %s", rec.Body.String())
	}
}

func TestDashboardCards(t *testing.T) {
	f := newFixture()
	rec := f.do(t, master, http.MethodGet, "/api/v1/config/dashboard-cards", "")
	var cards dashboardCards
	_ = json.Unmarshal(rec.Body.Bytes(), &cards)
	if strings.Join(cards.Cards, ",") != strings.Join(model.DefaultDashboardCards, ",") {
		t.Fatalf("expected default order, got %v", cards.Cards)
	}

	if rec := f.do(t, master, http.MethodPut, "/api/v1/config/dashboard-cards", `{"cards":["agenda","bogus"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown card, got %d", rec.Code)
	}
	rec = f.do(t, master, http.MethodPut, "/api/v1/config/dashboard-cards", `{"cards":["agenda","pacientes","agenda"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = f.do(t, master, http.MethodGet, "/api/v1/config/dashboard-cards", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &cards)
	if strings.Join(cards.Cards, ",") != "agenda,pacientes" {
		t.Fatalf("expected de-duplicated order, got %v", cards.Cards)
	}
}

func TestCEPLookup(t *testing.T) {
	f := newFixture()
	cases := []struct {
		path string
		want int
	}{
		{"/api/v1/cep/01001000", http.StatusOK},
		{"/api/v1/cep/123", http.StatusBadRequest},
		{"/api/v1/cep/99999999", http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := f.do(t, master, http.MethodGet, tc.path, ""); rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.want, rec.Code)
		}
	}
}

func TestInsurersAndSummary(t *testing.T) {
	f := newFixture()
	if got := decodeItems[insurance.Insurer](t, f.do(t, master, http.MethodGet, "/api/v1/insurers", "")); len(got) != len(insurance.Insurers()) {
		t.Fatalf("expected full catalog, got %d", len(got))
	}
	rec := f.do(t, master, http.MethodGet, "/api/v1/dashboard/summary", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pacientes":3`) {
		t.Fatalf("unexpected summary: %d %s", rec.Code, rec.Body.String())
	}
	if got := f.summary.end.Sub(f.summary.start); got != 24*time.Hour {
		t.Fatalf("expected a one-day window, got %v", got)
	}
}
