package storage

import (
	"context"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/agenda"
)

// ClinicRepository keeps the local clinic directory fed by auth events.
type ClinicRepository struct {
	pool *db.Pool
}

func NewClinicRepository(pool *db.Pool) *ClinicRepository {
	return &ClinicRepository{pool: pool}
}

func (r *ClinicRepository) Upsert(ctx context.Context, id, name, timezone string) error {
	if timezone == "" {
		timezone = agenda.DefaultTimezone
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinics (id, name, timezone) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, timezone = EXCLUDED.timezone
	`, id, name, timezone)
	return mapErr("upsert clinic", err)
}

// Timezone returns the clinic's IANA zone, or the default for clinics not yet known.
func (r *ClinicRepository) Timezone(ctx context.Context, clinicID string) (string, error) {
	return clinicTimezone(ctx, r.pool, clinicID)
}

func clinicTimezone(ctx context.Context, q querier, clinicID string) (string, error) {
	var tz string
	err := q.QueryRow(ctx, `SELECT timezone FROM clinics WHERE id = $1`, clinicID).Scan(&tz)
	if db.IsNotFound(err) || db.IsInvalidText(err) {
		return agenda.DefaultTimezone, nil
	}
	if err != nil {
		return "", mapErr("clinic timezone", err)
	}
	return tz, nil
}
