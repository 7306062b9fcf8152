package storage

import (
	"context"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
)

// InsurerRepository reads the global insurance catalog.
type InsurerRepository struct {
	pool *db.Pool
}

func NewInsurerRepository(pool *db.Pool) *InsurerRepository {
	return &InsurerRepository{pool: pool}
}

func (r *InsurerRepository) Insurers(ctx context.Context) ([]insurance.Insurer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM insurers ORDER BY name`)
	out, err := collect(rows, err, func(row scanner) (insurance.Insurer, error) {
		var i insurance.Insurer
		err := row.Scan(&i.ID, &i.Name)
		return i, err
	})
	return out, mapErr("list insurers", err)
}

func (r *InsurerRepository) Plans(ctx context.Context, insurerID string) ([]insurance.Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, insurer_id, name FROM insurance_plans WHERE insurer_id = $1 ORDER BY name`, insurerID)
	out, err := collect(rows, err, func(row scanner) (insurance.Plan, error) {
		var p insurance.Plan
		err := row.Scan(&p.ID, &p.InsurerID, &p.Name)
		return p, err
	})
	return out, mapErr("list plans", err)
}
