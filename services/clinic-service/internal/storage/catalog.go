package storage

import (
	"context"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type CategoryRepository struct {
	pool *db.Pool
}

func NewCategoryRepository(pool *db.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

const categoryColumns = `id::text, clinic_id::text, name, created_at`

func scanCategory(row scanner) (model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.ClinicID, &c.Name, &c.CreatedAt)
	return c, err
}

func (r *CategoryRepository) List(ctx context.Context, clinicID string) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+`
		FROM inventory_categories WHERE clinic_id = $1 ORDER BY name`, clinicID)
	out, err := collect(rows, err, scanCategory)
	return out, mapErr("list categories", err)
}

func (r *CategoryRepository) Get(ctx context.Context, clinicID, id string) (model.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+`
		FROM inventory_categories WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return c, mapErr("get category", err)
}

func (r *CategoryRepository) Create(ctx context.Context, clinicID string, in model.Category) (model.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `
		INSERT INTO inventory_categories (clinic_id, name) VALUES ($1, $2)
		RETURNING `+categoryColumns, clinicID, in.Name))
	return c, mapErr("create category", err)
}

func (r *CategoryRepository) Update(ctx context.Context, clinicID, id string, in model.Category) (model.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `
		UPDATE inventory_categories SET name = $3 WHERE clinic_id = $1 AND id = $2
		RETURNING `+categoryColumns, clinicID, id, in.Name))
	return c, mapErr("update category", err)
}

func (r *CategoryRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete category", "inventory_categories", clinicID, id)
}

type SupplierRepository struct {
	pool *db.Pool
}

func NewSupplierRepository(pool *db.Pool) *SupplierRepository {
	return &SupplierRepository{pool: pool}
}

const supplierColumns = `id::text, clinic_id::text, name, contact, phone, email, created_at`

func scanSupplier(row scanner) (model.Supplier, error) {
	var s model.Supplier
	err := row.Scan(&s.ID, &s.ClinicID, &s.Name, &s.Contact, &s.Phone, &s.Email, &s.CreatedAt)
	return s, err
}

func (r *SupplierRepository) List(ctx context.Context, clinicID string) ([]model.Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+`
		FROM suppliers WHERE clinic_id = $1 ORDER BY name`, clinicID)
	out, err := collect(rows, err, scanSupplier)
	return out, mapErr("list suppliers", err)
}

func (r *SupplierRepository) Get(ctx context.Context, clinicID, id string) (model.Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+`
		FROM suppliers WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return s, mapErr("get supplier", err)
}

func (r *SupplierRepository) Create(ctx context.Context, clinicID string, in model.Supplier) (model.Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (clinic_id, name, contact, phone, email) VALUES ($1, $2, $3, $4, $5)
		RETURNING `+supplierColumns, clinicID, in.Name, in.Contact, in.Phone, in.Email))
	return s, mapErr("create supplier", err)
}

func (r *SupplierRepository) Update(ctx context.Context, clinicID, id string, in model.Supplier) (model.Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `
		UPDATE suppliers SET name = $3, contact = $4, phone = $5, email = $6 WHERE clinic_id = $1 AND id = $2
		RETURNING `+supplierColumns, clinicID, id, in.Name, in.Contact, in.Phone, in.Email))
	return s, mapErr("update supplier", err)
}

func (r *SupplierRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete supplier", "suppliers", clinicID, id)
}
