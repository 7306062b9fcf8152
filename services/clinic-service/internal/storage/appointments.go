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
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/agenda"
	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

// ConflictError is returned when the clinic blocks overlapping appointments.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("overlaps %d appointment(s)", len(e.IDs))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// WriteResult is a stored appointment plus the ids it overlaps.
type WriteResult struct {
	Appointment model.AppointmentView `json:"evento"`
	Conflicts   []string              `json:"conflitos"`
}

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	a.id::text, a.clinic_id::text, a.title, a.patient_id::text, a.professional_id::text, a.service_id::text,
	a.starts_at, a.ends_at, a.type, a.status, a.notes, a.value_cents, a.created_at, a.updated_at,
	COALESCE(p.name, ''), COALESCE(p.mobile, p.phone, ''), COALESCE(pr.name, '')`

const appointmentFrom = `
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id
	LEFT JOIN professionals pr ON pr.id = a.professional_id`

func scanAppointment(row scanner) (model.AppointmentView, error) {
	var (
		v           model.AppointmentView
		typ, status string
	)
	err := row.Scan(&v.ID, &v.ClinicID, &v.Title, &v.PatientID, &v.ProfessionalID, &v.ServiceID,
		&v.StartsAt, &v.EndsAt, &typ, &status, &v.Notes, &v.ValueCents, &v.CreatedAt, &v.UpdatedAt,
		&v.PatientName, &v.PatientPhone, &v.ProfessionalName)
	v.Type, v.Status = model.AppointmentType(typ), model.AppointmentStatus(status)
	return v, err
}

// List returns the clinic's appointments starting in [from, to], ordered by start.
// A zero bound is open.
func (r *AppointmentRepository) List(ctx context.Context, clinicID string, from, to time.Time) ([]model.AppointmentView, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+appointmentFrom+`
		WHERE a.clinic_id = $1
		  AND ($2::timestamptz IS NULL OR a.starts_at >= $2)
		  AND ($3::timestamptz IS NULL OR a.starts_at <= $3)
		ORDER BY a.starts_at, a.id`, clinicID, fromArg, toArg)
	out, err := collect(rows, err, scanAppointment)
	return out, mapErr("list appointments", err)
}

func (r *AppointmentRepository) Get(ctx context.Context, clinicID, id string) (model.AppointmentView, error) {
	return r.get(ctx, r.pool, clinicID, id)
}

func (r *AppointmentRepository) get(ctx context.Context, q querier, clinicID, id string) (model.AppointmentView, error) {
	v, err := scanAppointment(q.QueryRow(ctx, `SELECT `+appointmentColumns+appointmentFrom+`
		WHERE a.clinic_id = $1 AND a.id = $2`, clinicID, id))
	return v, mapErr("get appointment", err)
}

// Create stores a new appointment. Overlaps with the professional's other appointments are
// reported, and rejected with a ConflictError when the clinic's agenda config blocks them.
func (r *AppointmentRepository) Create(ctx context.Context, clinicID string, in model.Appointment) (WriteResult, error) {
	var res WriteResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		conflicts, err := r.prepare(ctx, tx, clinicID, in)
		if err != nil {
			return err
		}
		var id string
		err = tx.QueryRow(ctx, `
			INSERT INTO appointments (clinic_id, title, patient_id, professional_id, service_id, starts_at, ends_at,
				type, status, notes, value_cents)
			VALUES ($1, $2, $3::uuid, $4::uuid, $5::uuid, $6, $7, $8, $9, $10, $11)
			RETURNING id::text`,
			clinicID, in.Title, in.PatientID, in.ProfessionalID, in.ServiceID, in.StartsAt, in.EndsAt,
			string(in.Type), string(in.Status), in.Notes, in.ValueCents).Scan(&id)
		if err != nil {
			return err
		}
		view, err := r.get(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		if err := r.enqueue(ctx, tx, events.AppointmentCreated, view, time.Time{}); err != nil {
			return err
		}
		res = WriteResult{Appointment: view, Conflicts: conflicts}
		return nil
	})
	return res, wrapWrite("create appointment", err)
}

// Update replaces an appointment. A move of the start emits a reschedule event and a
// transition to cancelado emits a cancellation.
func (r *AppointmentRepository) Update(ctx context.Context, clinicID, id string, in model.Appointment) (WriteResult, error) {
	var res WriteResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := r.lockExisting(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		in.ID = id
		conflicts, err := r.prepare(ctx, tx, clinicID, in)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE appointments SET title = $3, patient_id = $4::uuid, professional_id = $5::uuid, service_id = $6::uuid,
				starts_at = $7, ends_at = $8, type = $9, status = $10, notes = $11, value_cents = $12, updated_at = now()
			WHERE clinic_id = $1 AND id = $2`,
			clinicID, id, in.Title, in.PatientID, in.ProfessionalID, in.ServiceID, in.StartsAt, in.EndsAt,
			string(in.Type), string(in.Status), in.Notes, in.ValueCents)
		if err != nil {
			return err
		}
		view, err := r.get(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		if err := r.emitTransition(ctx, tx, prev, view); err != nil {
			return err
		}
		res = WriteResult{Appointment: view, Conflicts: conflicts}
		return nil
	})
	return res, wrapWrite("update appointment", err)
}

// SetStatus changes only the status. Leaving cancelado re-checks overlaps.
func (r *AppointmentRepository) SetStatus(ctx context.Context, clinicID, id string, status model.AppointmentStatus) (WriteResult, error) {
	var res WriteResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := r.lockExisting(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		next := prev.Appointment
		next.Status = status
		var conflicts []string
		if status != model.StatusCancelado {
			if conflicts, err = r.overlaps(ctx, tx, clinicID, next); err != nil {
				return err
			}
			if prev.Status == model.StatusCancelado && len(conflicts) > 0 {
				block, err := blocksConflicts(ctx, tx, clinicID)
				if err != nil {
					return err
				}
				if block {
					return &ConflictError{IDs: conflicts}
				}
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE appointments SET status = $3, updated_at = now() WHERE clinic_id = $1 AND id = $2`,
			clinicID, id, string(status)); err != nil {
			return err
		}
		view, err := r.get(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		if err := r.emitTransition(ctx, tx, prev, view); err != nil {
			return err
		}
		res = WriteResult{Appointment: view, Conflicts: conflicts}
		return nil
	})
	return res, wrapWrite("set appointment status", err)
}

// Delete removes the appointment; a still-active one is announced as cancelled.
func (r *AppointmentRepository) Delete(ctx context.Context, clinicID, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := r.lockExisting(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, id); err != nil {
			return err
		}
		if prev.Status == model.StatusCancelado || prev.Status == model.StatusConcluido {
			return nil
		}
		prev.Status = model.StatusCancelado
		return r.enqueue(ctx, tx, events.AppointmentCancelled, prev, time.Time{})
	})
	return wrapWrite("delete appointment", err)
}

func (r *AppointmentRepository) lockExisting(ctx context.Context, tx pgx.Tx, clinicID, id string) (model.AppointmentView, error) {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id::text FROM appointments WHERE clinic_id = $1 AND id = $2 FOR UPDATE`,
		clinicID, id).Scan(&locked)
	if err != nil {
		return model.AppointmentView{}, err
	}
	return r.get(ctx, tx, clinicID, id)
}

// prepare checks references, serializes writers of the same professional and computes
// overlaps, failing when the clinic blocks them.
func (r *AppointmentRepository) prepare(ctx context.Context, tx pgx.Tx, clinicID string, in model.Appointment) ([]string, error) {
	if err := checkAppointmentRefs(ctx, tx, clinicID, in); err != nil {
		return nil, err
	}
	conflicts, err := r.overlaps(ctx, tx, clinicID, in)
	if err != nil || len(conflicts) == 0 {
		return conflicts, err
	}
	block, err := blocksConflicts(ctx, tx, clinicID)
	if err != nil {
		return nil, err
	}
	if block {
		return nil, &ConflictError{IDs: conflicts}
	}
	return conflicts, nil
}

func (r *AppointmentRepository) overlaps(ctx context.Context, tx pgx.Tx, clinicID string, in model.Appointment) ([]string, error) {
	if in.ProfessionalID == nil || in.Status == model.StatusCancelado {
		return nil, nil
	}
	// Two writers for one professional would otherwise both miss each other's row.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`, clinicID, *in.ProfessionalID); err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id::text, professional_id::text, starts_at, ends_at, status
		FROM appointments
		WHERE clinic_id = $1 AND professional_id = $2::uuid AND status <> 'cancelado'
		  AND starts_at < $4 AND ends_at > $3`,
		clinicID, *in.ProfessionalID, in.StartsAt, in.EndsAt)
	existing, err := collect(rows, err, func(row scanner) (model.Appointment, error) {
		var (
			a      model.Appointment
			status string
		)
		err := row.Scan(&a.ID, &a.ProfessionalID, &a.StartsAt, &a.EndsAt, &status)
		a.Status = model.AppointmentStatus(status)
		return a, err
	})
	if err != nil {
		return nil, err
	}
	return agenda.Conflicts(in, existing), nil
}

// blocksConflicts reads agenda.bloquear_conflitos from the clinic's config.
func blocksConflicts(ctx context.Context, tx pgx.Tx, clinicID string) (bool, error) {
	var block bool
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(data -> 'bloquear_conflitos' = 'true'::jsonb, false)
		FROM config_blobs WHERE clinic_id = $1 AND category = 'agenda'`, clinicID).Scan(&block)
	if db.IsNotFound(err) {
		return false, nil
	}
	return block, err
}

func checkAppointmentRefs(ctx context.Context, tx pgx.Tx, clinicID string, in model.Appointment) error {
	refs := []struct {
		table string
		id    *string
	}{
		{"patients", in.PatientID},
		{"professionals", in.ProfessionalID},
		{"services", in.ServiceID},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		var ok bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+ref.table+` WHERE clinic_id = $1 AND id = $2::uuid)`,
			clinicID, *ref.id).Scan(&ok)
		if db.IsInvalidText(err) || (err == nil && !ok) {
			return fmt.Errorf("%s %s: %w", ref.table, *ref.id, ErrInvalidReference)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *AppointmentRepository) emitTransition(ctx context.Context, tx pgx.Tx, prev, next model.AppointmentView) error {
	switch {
	case next.Status == model.StatusCancelado && prev.Status != model.StatusCancelado:
		return r.enqueue(ctx, tx, events.AppointmentCancelled, next, time.Time{})
	case prev.Status == model.StatusCancelado && next.Status != model.StatusCancelado:
		return r.enqueue(ctx, tx, events.AppointmentCreated, next, time.Time{})
	case !next.StartsAt.Equal(prev.StartsAt) && next.Status != model.StatusCancelado:
		return r.enqueue(ctx, tx, events.AppointmentRescheduled, next, prev.StartsAt)
	}
	return nil
}

func (r *AppointmentRepository) enqueue(ctx context.Context, tx pgx.Tx, eventType string, v model.AppointmentView, previous time.Time) error {
	tz, err := clinicTimezone(ctx, tx, v.ClinicID)
	if err != nil {
		return err
	}
	evt, err := outbox.New(eventType, v.ClinicID, "appointment", v.ID, events.AppointmentPayload{
		AppointmentID:    v.ID,
		ClinicID:         v.ClinicID,
		Title:            v.Title,
		PatientID:        deref(v.PatientID),
		PatientName:      v.PatientName,
		PatientPhone:     v.PatientPhone,
		ProfessionalName: v.ProfessionalName,
		StartsAt:         v.StartsAt.UTC(),
		EndsAt:           v.EndsAt.UTC(),
		PreviousStartsAt: previous.UTC(),
		Timezone:         tz,
		Status:           string(v.Status),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func wrapWrite(op string, err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return err
	}
	return mapErr(op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
