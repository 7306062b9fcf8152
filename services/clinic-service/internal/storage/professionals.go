package storage

import (
	"context"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

type ProfessionalRepository struct {
	pool *db.Pool
}

func NewProfessionalRepository(pool *db.Pool) *ProfessionalRepository {
	return &ProfessionalRepository{pool: pool}
}

const professionalColumns = `id::text, clinic_id::text, name, council_id, specialty, email, phone,
	default_commission_pct::float8, created_at, updated_at`

func scanProfessional(row scanner) (model.Professional, error) {
	var (
		p   model.Professional
		pct float64
	)
	err := row.Scan(&p.ID, &p.ClinicID, &p.Name, &p.CouncilID, &p.Specialty, &p.Email, &p.Phone,
		&pct, &p.CreatedAt, &p.UpdatedAt)
	p.DefaultCommissionPct = model.Decimal(pct)
	return p, err
}

func (r *ProfessionalRepository) List(ctx context.Context, clinicID string) ([]model.Professional, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+professionalColumns+`
		FROM professionals WHERE clinic_id = $1 ORDER BY created_at DESC, id`, clinicID)
	out, err := collect(rows, err, scanProfessional)
	return out, mapErr("list professionals", err)
}

func (r *ProfessionalRepository) Get(ctx context.Context, clinicID, id string) (model.Professional, error) {
	p, err := scanProfessional(r.pool.QueryRow(ctx, `SELECT `+professionalColumns+`
		FROM professionals WHERE clinic_id = $1 AND id = $2`, clinicID, id))
	return p, mapErr("get professional", err)
}

func (r *ProfessionalRepository) Create(ctx context.Context, clinicID string, in model.Professional) (model.Professional, error) {
	p, err := scanProfessional(r.pool.QueryRow(ctx, `
		INSERT INTO professionals (clinic_id, name, council_id, specialty, email, phone, default_commission_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+professionalColumns,
		clinicID, in.Name, in.CouncilID, in.Specialty, in.Email, in.Phone, float64(in.DefaultCommissionPct)))
	return p, mapErr("create professional", err)
}

func (r *ProfessionalRepository) Update(ctx context.Context, clinicID, id string, in model.Professional) (model.Professional, error) {
	p, err := scanProfessional(r.pool.QueryRow(ctx, `
		UPDATE professionals SET name = $3, council_id = $4, specialty = $5, email = $6, phone = $7,
			default_commission_pct = $8, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+professionalColumns,
		clinicID, id, in.Name, in.CouncilID, in.Specialty, in.Email, in.Phone, float64(in.DefaultCommissionPct)))
	return p, mapErr("update professional", err)
}

func (r *ProfessionalRepository) Delete(ctx context.Context, clinicID, id string) error {
	return deleteByID(ctx, r.pool, "delete professional", "professionals", clinicID, id)
}

func (r *ProfessionalRepository) SearchByName(ctx context.Context, clinicID, q string, limit int) ([]model.Professional, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+professionalColumns+`
		FROM professionals
		WHERE clinic_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name
		LIMIT $3`, clinicID, escapeLike(q), limit)
	out, err := collect(rows, err, scanProfessional)
	return out, mapErr("search professionals", err)
}
