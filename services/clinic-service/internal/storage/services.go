package storage

import (
	"context"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type ServiceRepository struct {
	pool *db.Pool
}

func NewServiceRepository(pool *db.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

const serviceColumns = `id::text, clinic_id::text, name, base_price_cents, duration_minutes,
	default_commission_pct::float8, created_at, updated_at`

func scanService(row scanner) (model.Service, error) {
	var (
		s   model.Service
		pct float64
	)
	err := row.Scan(&s.ID, &s.ClinicID, &s.Name, &s.BasePriceCents, &s.DurationMinutes, &pct, &s.CreatedAt, &s.UpdatedAt)
	s.DefaultCommissionPct = model.Decimal(pct)
	return s, err
}

func (r *ServiceRepository) List(ctx context.Context, clinicID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+`
		FROM services WHERE clinic_id = $1 ORDER BY created_at DESC, id`, clinicID)
	out, err := collect(rows, err, scanService)
	return out, mapErr("list services", err)
}

func (r *ServiceRepository) Get(ctx context.Context, clinicID, id string) (model.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+`
		FROM services WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return s, mapErr("get service", err)
}

func (r *ServiceRepository) Create(ctx context.Context, clinicID string, in model.Service) (model.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `
		INSERT INTO services (clinic_id, name, base_price_cents, duration_minutes, default_commission_pct)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+serviceColumns,
		clinicID, in.Name, in.BasePriceCents, in.DurationMinutes, float64(in.DefaultCommissionPct)))
	return s, mapErr("create service", err)
}

func (r *ServiceRepository) Update(ctx context.Context, clinicID, id string, in model.Service) (model.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `
		UPDATE services SET name = $3, base_price_cents = $4, duration_minutes = $5,
			default_commission_pct = $6, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+serviceColumns,
		clinicID, id, in.Name, in.BasePriceCents, in.DurationMinutes, float64(in.DefaultCommissionPct)))
	return s, mapErr("update service", err)
}

func (r *ServiceRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete service", "services", clinicID, id)
}
