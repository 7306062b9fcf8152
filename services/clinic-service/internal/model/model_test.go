package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func fieldsOf(t *testing.T, err error) Fields {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr.Fields
}

func TestPatientDefaultsAndRequiredName(t *testing.T) {
	p := Patient{Name: "  "}
	fields := fieldsOf(t, p.Validate())
	if fields["nome"] != "required" {
		t.Fatalf("expected nome required, got %v", fields)
	}

	p = Patient{Name: " Maria Silva "}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Maria Silva" || p.Status != PatientActive || p.CareType != "particular" || p.DocumentType != "cpf" {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestPatientFieldChecks(t *testing.T) {
	bad := "111.111.111-11"
	date := "03/04/1990"
	p := Patient{
		Name:      "Joao",
		CPF:       &bad,
		BirthDate: &date,
		CareType:  "convenio",
		Address:   Address{CEP: "123", UF: "XX"},
	}
	fields := fieldsOf(t, p.Validate())
	for _, k := range []string{"cpf", "data_nascimento", "convenio_id", "endereco.cep", "endereco.uf"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("expected %s in %v", k, fields)
		}
	}
}

func TestPatientNormalizesAddress(t *testing.T) {
	p := Patient{Name: "Ana", Address: Address{CEP: "01310100", UF: "sp"}}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Address.CEP != "01310-100" || p.Address.UF != "SP" {
		t.Fatalf("unexpected address %+v", p.Address)
	}
}

func TestDecimalCoercion(t *testing.T) {
	var v struct {
		A Decimal `json:"a"`
		B Decimal `json:"b"`
		C Decimal `json:"c"`
		D Decimal `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "7,25", "c": "", "d": null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 12.5 || v.B != 7.25 || v.C != 0 || v.D != 0 {
		t.Fatalf("unexpected values %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a": "abc"}`), &v); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
	for _, raw := range []string{`"NaN"`, `"nan"`, `"Inf"`, `"-Inf"`, `"+Infinity"`} {
		var d Decimal
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			t.Fatalf("%s: expected non-finite value to be rejected, got %v", raw, d)
		}
	}
}

func TestInventoryItemRejectsNonFiniteQuantity(t *testing.T) {
	var it InventoryItem
	if err := json.Unmarshal([]byte(`{"nome":"Luva","quantidade_atual":"NaN"}`), &it); err == nil {
		t.Fatalf("expected NaN quantity to fail decoding")
	}

	it = InventoryItem{}
	if err := json.Unmarshal([]byte(`{"nome":"Luva","quantidade_atual":"2","quantidade_minima":"5"}`), &it); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := it.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := json.Marshal(it); err != nil || !it.LowStock {
		t.Fatalf("finite item must encode and flag low stock: %v %+v", err, it)
	}
}

func TestInventoryLowStock(t *testing.T) {
	items := []InventoryItem{
		{Name: "Luva", CurrentQty: 2, MinQty: 5},
		{Name: "Resina", CurrentQty: 10, MinQty: 5},
		{Name: "Anestesico", CurrentQty: 5, MinQty: 5},
	}
	low := LowStock(items)
	if len(low) != 2 || low[0].Name != "Luva" || low[1].Name != "Anestesico" {
		t.Fatalf("unexpected low stock subset %+v", low)
	}

	it := InventoryItem{Name: "Luva", CurrentQty: 2, MinQty: 5}
	if err := it.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !it.LowStock || it.Unit != DefaultUnit || it.Active == nil || !*it.Active {
		t.Fatalf("derived fields not set: %+v", it)
	}
}

func TestStockMovementApply(t *testing.T) {
	cases := []struct {
		m    StockMovement
		want Decimal
	}{
		{StockMovement{Kind: MovementIn, Quantity: 3}, 13},
		{StockMovement{Kind: MovementOut, Quantity: 4}, 6},
		{StockMovement{Kind: MovementAdjust, Quantity: 1}, 1},
	}
	for _, tc := range cases {
		if err := tc.m.Validate(); err != nil {
			t.Fatalf("%s: %v", tc.m.Kind, err)
		}
		if got := tc.m.Apply(10); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.m.Kind, tc.want, got)
		}
	}
	bad := StockMovement{Kind: MovementOut, Quantity: 0}
	if bad.Validate() == nil {
		t.Fatalf("expected zero saida to be rejected")
	}
}

func TestAppointmentValidate(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	a := Appointment{Title: "Limpeza", StartsAt: start, EndsAt: start.Add(30 * time.Minute)}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Type != TypeConsulta || a.Status != StatusAgendado {
		t.Fatalf("defaults not applied: %+v", a)
	}

	a = Appointment{Title: "x", StartsAt: start, EndsAt: start, Type: "cirurgia"}
	fields := fieldsOf(t, a.Validate())
	if _, ok := fields["data_fim"]; !ok {
		t.Fatalf("expected data_fim error, got %v", fields)
	}
	if _, ok := fields["tipo"]; !ok {
		t.Fatalf("expected tipo error, got %v", fields)
	}
}
