package model

import (
	"strings"
	"time"
)

const DefaultUnit = "unidade"

type InventoryItem struct {
	ID             string    `json:"id"`
	ClinicID       string    `json:"clinic_id"`
	Name           string    `json:"nome"`
	Description    *string   `json:"descricao"`
	Barcode        *string   `json:"codigo_barras"`
	Unit           string    `json:"unidade_medida"`
	CurrentQty     Decimal   `json:"quantidade_atual"`
	MinQty         Decimal   `json:"quantidade_minima"`
	CostPriceCents int64     `json:"preco_custo_cents"`
	SalePriceCents int64     `json:"preco_venda_cents"`
	ExpiresOn      *string   `json:"data_validade"`
	Lot            *string   `json:"lote"`
	CategoryID     *string   `json:"categoria_id"`
	SupplierID     *string   `json:"fornecedor_id"`
	Active         *bool     `json:"ativo"`
	CategoryName   string    `json:"categoria_nome,omitempty"`
	SupplierName   string    `json:"fornecedor_nome,omitempty"`
	LowStock       bool      `json:"em_falta"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsLowStock reports whether the current quantity has reached the minimum.
func (i InventoryItem) IsLowStock() bool {
	return i.CurrentQty <= i.MinQty
}

// Derive fills the computed fields.
func (i *InventoryItem) Derive() {
	i.LowStock = i.IsLowStock()
}

func (i *InventoryItem) Validate() error {
	f := Fields{}
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		f.add("nome", "required")
	}
	i.Description, i.Barcode, i.Lot = trimPtr(i.Description), trimPtr(i.Barcode), trimPtr(i.Lot)
	i.Unit = strings.TrimSpace(i.Unit)
	if i.Unit == "" {
		i.Unit = DefaultUnit
	}
	if i.CurrentQty < 0 {
		f.add("quantidade_atual", "must not be negative")
	}
	if i.MinQty < 0 {
		f.add("quantidade_minima", "must not be negative")
	}
	if i.CostPriceCents < 0 {
		f.add("preco_custo_cents", "must not be negative")
	}
	if i.SalePriceCents < 0 {
		f.add("preco_venda_cents", "must not be negative")
	}
	i.ExpiresOn = trimPtr(i.ExpiresOn)
	if !validDate(i.ExpiresOn) {
		f.add("data_validade", "must be YYYY-MM-DD")
	}
	i.CategoryID, i.SupplierID = trimPtr(i.CategoryID), trimPtr(i.SupplierID)
	if i.Active == nil {
		active := true
		i.Active = &active
	}
	i.Derive()
	return f.Err()
}

// LowStock returns the items at or below their minimum, order preserved.
func LowStock(items []InventoryItem) []InventoryItem {
	out := make([]InventoryItem, 0, len(items))
	for _, it := range items {
		if it.IsLowStock() {
			out = append(out, it)
		}
	}
	return out
}

type Category struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"nome"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Category) Validate() error {
	f := Fields{}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		f.add("nome", "required")
	}
	return f.Err()
}

type Supplier struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"nome"`
	Contact   *string   `json:"contato"`
	Phone     *string   `json:"telefone"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Supplier) Validate() error {
	f := Fields{}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		f.add("nome", "required")
	}
	s.Contact, s.Phone, s.Email = trimPtr(s.Contact), trimPtr(s.Phone), trimPtr(s.Email)
	if s.Email != nil && !validEmail(*s.Email) {
		f.add("email", "invalid email")
	}
	return f.Err()
}

type MovementKind string

const (
	MovementIn     MovementKind = "entrada"
	MovementOut    MovementKind = "saida"
	MovementAdjust MovementKind = "ajuste"
)

// StockMovement changes an item's current quantity. Entrada adds, saida subtracts and
// ajuste sets the quantity to an absolute value.
type StockMovement struct {
	ID        int64        `json:"id"`
	ItemID    string       `json:"produto_id"`
	Kind      MovementKind `json:"tipo"`
	Quantity  Decimal      `json:"quantidade"`
	Reason    *string      `json:"motivo"`
	ActorID   string       `json:"usuario_id"`
	CreatedAt time.Time    `json:"created_at"`
}

func (m *StockMovement) Validate() error {
	f := Fields{}
	switch m.Kind {
	case MovementIn, MovementOut:
		if m.Quantity <= 0 {
			f.add("quantidade", "must be positive")
		}
	case MovementAdjust:
		if m.Quantity < 0 {
			f.add("quantidade", "must not be negative")
		}
	default:
		f.add("tipo", "must be entrada, saida or ajuste")
	}
	m.Reason = trimPtr(m.Reason)
	return f.Err()
}

// Apply returns the quantity after the movement.
func (m StockMovement) Apply(current Decimal) Decimal {
	switch m.Kind {
	case MovementIn:
		return current + m.Quantity
	case MovementOut:
		return current - m.Quantity
	default:
		return m.Quantity
	}
}
