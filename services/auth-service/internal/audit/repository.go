package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
)

const (
	ClinicCreated      = "clinic.created"
	EmailConfirmed     = "user.email_confirmed"
	UserInvited        = "user.invited"
	InviteAccepted     = "user.invite_accepted"
	PermissionsChanged = "user.permissions_changed"
	StatusChanged      = "user.status_changed"
	UserRemoved        = "user.removed"
	PasswordReset      = "user.password_reset"
	ProfileUpdated     = "user.profile_updated"
)

type Entry struct {
	ClinicID  string
	EventType string
	ActorID   string
	TargetID  string
	Metadata  map[string]any
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordTx writes the entry as part of the caller's transaction.
func (r *Repository) RecordTx(ctx context.Context, tx pgx.Tx, e Entry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	raw, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (clinic_id, event_type, actor_id, target_id, metadata)
		VALUES (NULLIF($1, '')::uuid, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5)
	`, e.ClinicID, e.EventType, e.ActorID, e.TargetID, raw)
	return err
}

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r *Repository) ListRecent(ctx context.Context, clinicID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id::text, ''), COALESCE(target_id::text, ''), metadata, created_at
		FROM audit_events
		WHERE clinic_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, clinicID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.TargetID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
