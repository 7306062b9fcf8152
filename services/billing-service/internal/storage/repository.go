// Package storage is the pgx persistence of payments, provider webhook events and the
// billing outbox.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/outbox"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
)

var (
	ErrNotFound               = errors.New("payment not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
)

const providerStripe = "stripe"

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const paymentColumns = `
	id::text, clinic_id::text, appointment_id::text, method, installments, amount_cents, description,
	status, provider, provider_ref, checkout_url, failure_reason, created_at, updated_at, paid_at`

type row interface {
	Scan(dest ...any) error
}

func scanPayment(r row) (payments.Payment, error) {
	var (
		p              payments.Payment
		method, status string
	)
	err := r.Scan(&p.ID, &p.ClinicID, &p.AppointmentID, &method, &p.Installments, &p.AmountCents, &p.Description,
		&status, &p.Provider, &p.ProviderRef, &p.CheckoutURL, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt)
	p.Method, p.Status = payments.Method(method), payments.Status(status)
	return p, mapErr(err)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err), db.IsInvalidText(err):
		return ErrNotFound
	}
	return err
}

// UpsertPending inserts the pending payment for (clinic, idempotency key) or returns the
// existing one unchanged.
func (r *Repository) UpsertPending(ctx context.Context, clinicID, actorID, key string, req payments.LinkRequest) (payments.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		INSERT INTO payments (clinic_id, idempotency_key, appointment_id, method, installments, amount_cents, description, created_by)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, NULLIF($8, '')::uuid)
		ON CONFLICT (clinic_id, idempotency_key) DO UPDATE SET updated_at = payments.updated_at
		RETURNING `+paymentColumns,
		clinicID, key, req.AppointmentID, string(req.Method), req.Installments, req.AmountCents, req.Description, actorID))
	if err != nil {
		return payments.Payment{}, fmt.Errorf("upsert payment: %w", err)
	}
	return p, nil
}

// AttachSession stores the checkout session on a pending payment.
func (r *Repository) AttachSession(ctx context.Context, clinicID, id, sessionID, url string) (payments.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE payments SET provider_ref = $3, checkout_url = $4, updated_at = now()
		WHERE clinic_id = $1 AND id = $2
		RETURNING `+paymentColumns, clinicID, id, sessionID, url))
	if err != nil {
		return payments.Payment{}, fmt.Errorf("attach session: %w", err)
	}
	return p, nil
}

func (r *Repository) MarkFailed(ctx context.Context, clinicID, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = 'falhou', failure_reason = $3, updated_at = now()
		WHERE clinic_id = $1 AND id = $2 AND status = 'pendente'`, clinicID, id, reason)
	return err
}

// List returns the clinic's newest payments.
func (r *Repository) List(ctx context.Context, clinicID string, limit int) ([]payments.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE clinic_id = $1 ORDER BY created_at DESC, id LIMIT $2`, clinicID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(cr pgx.CollectableRow) (payments.Payment, error) {
		return scanPayment(cr)
	})
}

func (r *Repository) Get(ctx context.Context, clinicID, id string) (payments.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE clinic_id = $1 AND id = $2`, clinicID, id))
}

// ProviderEvent is a verified webhook delivery. PaymentID and SessionID locate the payment;
// an empty Status records the delivery without touching any payment.
type ProviderEvent struct {
	ID         string
	Type       string
	Payload    []byte
	PaymentID  string
	SessionID  string
	Status     payments.Status
	OccurredAt time.Time
}

// ApplyProviderEvent records the delivery and applies its status change in one transaction.
// A redelivered event fails with ErrDuplicateProviderEvent and changes nothing.
func (r *Repository) ApplyProviderEvent(ctx context.Context, evt ProviderEvent) (*payments.Payment, error) {
	var out *payments.Payment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
			VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (provider, provider_event_id) DO NOTHING`,
			providerStripe, evt.ID, evt.Type, string(evt.Payload))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicateProviderEvent
		}
		if evt.Status == "" {
			return nil
		}
		p, err := r.transition(ctx, tx, evt.PaymentID, evt.SessionID, evt.Status, evt.OccurredAt)
		out = p
		return err
	})
	return out, err
}

// Transition applies a status learned outside webhooks, as the reconciler does.
func (r *Repository) Transition(ctx context.Context, paymentID string, status payments.Status, at time.Time) (*payments.Payment, error) {
	var out *payments.Payment
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := r.transition(ctx, tx, paymentID, "", status, at)
		out = p
		return err
	})
	return out, err
}

// transition moves a non-final payment to status and enqueues billing.payment.paid when it
// becomes paid. It returns nil when no payment matched or the payment was already final.
func (r *Repository) transition(ctx context.Context, tx pgx.Tx, paymentID, sessionID string, status payments.Status, at time.Time) (*payments.Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `
		UPDATE payments
		SET status = $3,
		    paid_at = CASE WHEN $3 = 'pago' THEN $4::timestamptz ELSE paid_at END,
		    updated_at = now()
		WHERE ((NULLIF($1, '') IS NOT NULL AND id::text = $1) OR (NULLIF($2, '') IS NOT NULL AND provider_ref = $2))
		  AND status NOT IN ('pago', 'expirado')
		  AND status <> $3
		RETURNING `+paymentColumns, paymentID, sessionID, string(status), at))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status == payments.StatusPaid {
		paidAt := at
		if p.PaidAt != nil {
			paidAt = *p.PaidAt
		}
		evt, err := outbox.New(events.PaymentPaid, p.ClinicID, "payment", p.ID, events.PaymentPaidPayload{
			PaymentID:     p.ID,
			ClinicID:      p.ClinicID,
			AppointmentID: deref(p.AppointmentID),
			AmountCents:   p.AmountCents,
			Method:        string(p.Method),
			PaidAt:        paidAt.UTC(),
		})
		if err != nil {
			return nil, err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// PendingSessions lists pending payments with a checkout session created before olderThan.
func (r *Repository) PendingSessions(ctx context.Context, olderThan time.Time, limit int) ([]payments.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pendente' AND provider_ref IS NOT NULL AND created_at < $1
		ORDER BY created_at LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(cr pgx.CollectableRow) (payments.Payment, error) {
		return scanPayment(cr)
	})
}

// TryLock takes a session-level advisory lock on a dedicated connection. The returned
// release func unlocks and returns the connection; it is nil when the lock was not taken.
func (r *Repository) TryLock(ctx context.Context, key int64) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, err
	}
	if !locked {
		conn.Release()
		return nil, nil
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
