package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
)

type Summary struct {
	Patients          int `json:"pacientes"`
	Professionals     int `json:"profissionais"`
	AppointmentsToday int `json:"consultas_hoje"`
	LowStock          int `json:"estoque_em_falta"`
}

type DashboardRepository struct {
	pool *db.Pool
}

func NewDashboardRepository(pool *db.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// Summary counts the clinic's records; today is [dayStart, dayEnd) in clinic time.
func (r *DashboardRepository) Summary(ctx context.Context, clinicID string, dayStart, dayEnd time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM patients WHERE clinic_id = $1),
			(SELECT count(*) FROM professionals WHERE clinic_id = $1),
			(SELECT count(*) FROM appointments
			  WHERE clinic_id = $1 AND starts_at >= $2 AND starts_at < $3 AND status <> 'cancelado'),
			(SELECT count(*) FROM inventory_items
			  WHERE clinic_id = $1 AND active AND current_qty <= min_qty)
	`, clinicID, dayStart, dayEnd).Scan(&s.Patients, &s.Professionals, &s.AppointmentsToday, &s.LowStock)
	return s, mapErr("dashboard summary", err)
}
