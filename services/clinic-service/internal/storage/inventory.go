package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type InventoryRepository struct {
	pool *db.Pool
}

func NewInventoryRepository(pool *db.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

const itemColumns = `
	i.id::text, i.clinic_id::text, i.name, i.description, i.barcode, i.unit, i.current_qty::float8,
	i.min_qty::float8, i.cost_price_cents, i.sale_price_cents, to_char(i.expires_on, 'YYYY-MM-DD'), i.lot,
	i.category_id::text, i.supplier_id::text, i.active, COALESCE(c.name, ''), COALESCE(s.name, ''),
	i.created_at, i.updated_at`

const itemFrom = `
	FROM inventory_items i
	LEFT JOIN inventory_categories c ON c.id = i.category_id
	LEFT JOIN suppliers s ON s.id = i.supplier_id`

func scanItem(row scanner) (model.InventoryItem, error) {
	var (
		it          model.InventoryItem
		current, mn float64
		active      bool
	)
	err := row.Scan(&it.ID, &it.ClinicID, &it.Name, &it.Description, &it.Barcode, &it.Unit, &current, &mn,
		&it.CostPriceCents, &it.SalePriceCents, &it.ExpiresOn, &it.Lot, &it.CategoryID, &it.SupplierID,
		&active, &it.CategoryName, &it.SupplierName, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return model.InventoryItem{}, err
	}
	it.CurrentQty, it.MinQty = model.Decimal(current), model.Decimal(mn)
	it.Active = &active
	it.Derive()
	return it, nil
}

// ItemQuery narrows the item list. LowStock keeps items at or below their minimum.
type ItemQuery struct {
	Text       string
	LowStock   bool
	ActiveOnly bool
}

// List returns the clinic's items ordered by name.
func (r *InventoryRepository) List(ctx context.Context, clinicID string) ([]model.InventoryItem, error) {
	return r.Find(ctx, clinicID, ItemQuery{})
}

func (r *InventoryRepository) Find(ctx context.Context, clinicID string, q ItemQuery) ([]model.InventoryItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+itemFrom+`
		WHERE i.clinic_id = $1
		  AND ($2 = '' OR i.name ILIKE '%' || $2 || '%' OR i.barcode = $2)
		  AND (NOT $3 OR i.current_qty <= i.min_qty)
		  AND (NOT $4 OR i.active)
		ORDER BY i.name, i.id`, clinicID, escapeLike(q.Text), q.LowStock, q.ActiveOnly)
	out, err := collect(rows, err, scanItem)
	return out, mapErr("list inventory", err)
}

func (r *InventoryRepository) Get(ctx context.Context, clinicID, id string) (model.InventoryItem, error) {
	return r.get(ctx, r.pool, clinicID, id)
}

func (r *InventoryRepository) get(ctx context.Context, q querier, clinicID, id string) (model.InventoryItem, error) {
	it, err := scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+itemFrom+`
		WHERE i.clinic_id = $1 AND i.id = $2`, clinicID, id))
	return it, mapErr("get inventory item", err)
}

func itemArgs(in model.InventoryItem) []any {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return []any{in.Name, in.Description, in.Barcode, in.Unit, float64(in.CurrentQty), float64(in.MinQty),
		in.CostPriceCents, in.SalePriceCents, in.ExpiresOn, in.Lot, in.CategoryID, in.SupplierID, active}
}

// Create inserts the item. Category and supplier must belong to the same clinic.
func (r *InventoryRepository) Create(ctx context.Context, clinicID string, in model.InventoryItem) (model.InventoryItem, error) {
	var out model.InventoryItem
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkRefs(ctx, tx, clinicID, in); err != nil {
			return err
		}
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO inventory_items (clinic_id, name, description, barcode, unit, current_qty, min_qty,
				cost_price_cents, sale_price_cents, expires_on, lot, category_id, supplier_id, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::date, $11, $12::uuid, $13::uuid, $14)
			RETURNING id::text`, append([]any{clinicID}, itemArgs(in)...)...).Scan(&id)
		if err != nil {
			return err
		}
		out, err = r.get(ctx, tx, clinicID, id)
		return err
	})
	return out, mapErr("create inventory item", err)
}

func (r *InventoryRepository) Update(ctx context.Context, clinicID, id string, in model.InventoryItem) (model.InventoryItem, error) {
	var out model.InventoryItem
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkRefs(ctx, tx, clinicID, in); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE inventory_items SET name = $3, description = $4, barcode = $5, unit = $6, current_qty = $7,
				min_qty = $8, cost_price_cents = $9, sale_price_cents = $10, expires_on = $11::date, lot = $12,
				category_id = $13::uuid, supplier_id = $14::uuid, active = $15, updated_at = now()
			WHERE clinic_id = $1 AND id = $2`, append([]any{clinicID, id}, itemArgs(in)...)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		out, err = r.get(ctx, tx, clinicID, id)
		return err
	})
	return out, mapErr("update inventory item", err)
}

func (r *InventoryRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete inventory item", "inventory_items", clinicID, id)
}

// checkRefs rejects category or supplier ids of another clinic; the foreign keys alone
// would accept them.
func checkRefs(ctx context.Context, tx pgx.Tx, clinicID string, in model.InventoryItem) error {
	check := func(table string, id *string) error {
		if id == nil {
			return nil
		}
		var ok bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE clinic_id = $1 AND id = $2::uuid)`,
			clinicID, *id).Scan(&ok)
		if db.IsInvalidText(err) || (err == nil && !ok) {
			return fmt.Errorf("%s %s: %w", table, *id, ErrInvalidReference)
		}
		return err
	}
	if err := check("inventory_categories", in.CategoryID); err != nil {
		return err
	}
	return check("suppliers", in.SupplierID)
}

// ApplyMovement records a stock movement and updates the item quantity in one transaction.
// A saida that would take the quantity below zero fails with ErrInsufficientStock.
func (r *InventoryRepository) ApplyMovement(ctx context.Context, clinicID, itemID, actorID string, m model.StockMovement) (model.InventoryItem, model.StockMovement, error) {
	var (
		item model.InventoryItem
		rec  model.StockMovement
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current float64
		err := tx.QueryRow(ctx, `
			SELECT current_qty::float8 FROM inventory_items
			WHERE clinic_id = $1 AND id = $2
			FOR UPDATE`, clinicID, itemID).Scan(&current)
		if err != nil {
			return err
		}
		next := m.Apply(model.Decimal(current))
		if next < 0 {
			return ErrInsufficientStock
		}
		if _, err := tx.Exec(ctx, `
			UPDATE inventory_items SET current_qty = $3, updated_at = now()
			WHERE clinic_id = $1 AND id = $2`, clinicID, itemID, float64(next)); err != nil {
			return err
		}
		var (
			qty  float64
			kind string
		)
		err = tx.QueryRow(ctx, `
			INSERT INTO stock_movements (clinic_id, item_id, kind, quantity, reason, actor_id)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
			RETURNING id, item_id::text, kind, quantity::float8, reason, COALESCE(actor_id::text, ''), created_at`,
			clinicID, itemID, string(m.Kind), float64(m.Quantity), m.Reason, actorID).
			Scan(&rec.ID, &rec.ItemID, &kind, &qty, &rec.Reason, &rec.ActorID, &rec.CreatedAt)
		if err != nil {
			return err
		}
		rec.Kind, rec.Quantity = model.MovementKind(kind), model.Decimal(qty)
		item, err = r.get(ctx, tx, clinicID, itemID)
		return err
	})
	return item, rec, mapErr("apply movement", err)
}

// Movements lists the newest movements of an item.
func (r *InventoryRepository) Movements(ctx context.Context, clinicID, itemID string, limit int) ([]model.StockMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id::text, kind, quantity::float8, reason, COALESCE(actor_id::text, ''), created_at
		FROM stock_movements
		WHERE clinic_id = $1 AND item_id = $2
		ORDER BY id DESC
		LIMIT $3`, clinicID, itemID, limit)
	out, err := collect(rows, err, func(row scanner) (model.StockMovement, error) {
		var (
			m    model.StockMovement
			qty  float64
			kind string
		)
		err := row.Scan(&m.ID, &m.ItemID, &kind, &qty, &m.Reason, &m.ActorID, &m.CreatedAt)
		m.Kind, m.Quantity = model.MovementKind(kind), model.Decimal(qty)
		return m, err
	})
	return out, mapErr("list movements", err)
}
