package storage

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

// ConfigRepository stores one JSON object per clinic and category.
type ConfigRepository struct {
	pool *db.Pool
}

func NewConfigRepository(pool *db.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

func (r *ConfigRepository) All(ctx context.Context, clinicID string) (map[model.ConfigCategory]json.RawMessage, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, data FROM config_blobs WHERE clinic_id = $1`, clinicID)
	if err != nil {
		return nil, mapErr("list config", err)
	}
	defer rows.Close()
	out := map[model.ConfigCategory]json.RawMessage{}
	for rows.Next() {
		var (
			cat  string
			data []byte
		)
		if err := rows.Scan(&cat, &data); err != nil {
			return nil, mapErr("scan config", err)
		}
		out[model.ConfigCategory(cat)] = data
	}
	return out, mapErr("list config", rows.Err())
}

func (r *ConfigRepository) Get(ctx context.Context, clinicID string, cat model.ConfigCategory) (json.RawMessage, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM config_blobs WHERE clinic_id = $1 AND category = $2`,
		clinicID, string(cat)).Scan(&data)
	return data, mapErr("get config", err)
}

// Put replaces the blob wholesale.
func (r *ConfigRepository) Put(ctx context.Context, clinicID, actorID string, cat model.ConfigCategory, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO config_blobs (clinic_id, category, data, updated_by)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid)
		ON CONFLICT (clinic_id, category)
		DO UPDATE SET data = EXCLUDED.data, updated_by = EXCLUDED.updated_by, updated_at = now()
	`, clinicID, string(cat), []byte(data), actorID)
	return mapErr("put config", err)
}

// MergeKey sets one top-level key of the blob, keeping the others, in a single statement.
func (r *ConfigRepository) MergeKey(ctx context.Context, clinicID, actorID string, cat model.ConfigCategory, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO config_blobs (clinic_id, category, data, updated_by)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb), NULLIF($5, '')::uuid)
		ON CONFLICT (clinic_id, category)
		DO UPDATE SET data = config_blobs.data || EXCLUDED.data, updated_by = EXCLUDED.updated_by, updated_at = now()
	`, clinicID, string(cat), key, raw, actorID)
	return mapErr("merge config", err)
}
