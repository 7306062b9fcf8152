// Package store persists LuzIA state with gorm: settings, the activity log, planned
// reminders, the clinic-name directory and the consumer inbox.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/md-rashed-zaman/dentalcare/services/luzia-service/internal/luzia"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects gorm to Postgres. Timestamps are written in UTC.
func Open(dsn string, logger *slog.Logger, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(logger))
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// Config is the gorm configuration shared by Open and tests.
func Config(logger *slog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:  newSlogLogger(logger, gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or extends the LuzIA tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&settingsRow{}, &logRow{}, &reminderRow{}, &clinicRow{}, &inboxRow{})
}

// Ping backs the readiness check.
func Ping(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Settings(ctx context.Context, clinicID string) (luzia.Settings, error) {
	var row settingsRow
	err := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return luzia.DefaultSettings(clinicID), nil
	}
	if err != nil {
		return luzia.Settings{}, err
	}
	return row.settings(), nil
}

// SaveSettings upserts the clinic's settings in one statement.
func (s *Store) SaveSettings(ctx context.Context, in luzia.Settings, actorID string) (luzia.Settings, error) {
	row := settingsRow{
		ClinicID:            in.ClinicID,
		Enabled:             in.Enabled,
		ConfirmAppointments: in.ConfirmAppointments,
		AutoReschedule:      in.AutoReschedule,
		AutoCancel:          in.AutoCancel,
		ConfirmLeadHours:    in.ConfirmLeadHours,
		RescheduleLeadHours: in.RescheduleLeadHours,
		ConfirmTemplate:     in.ConfirmTemplate,
		RescheduleTemplate:  in.RescheduleTemplate,
		CancelTemplate:      in.CancelTemplate,
		WhatsAppPhone:       in.WhatsAppPhone,
		WhatsAppAPIKey:      in.WhatsAppAPIKey,
		UpdatedBy:           actorID,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "clinic_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "confirm_appointments", "auto_reschedule", "auto_cancel",
			"confirm_lead_hours", "reschedule_lead_hours",
			"confirm_template", "reschedule_template", "cancel_template",
			"whatsapp_phone", "whatsapp_api_key", "updated_by", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return luzia.Settings{}, err
	}
	return row.settings(), nil
}

func (r settingsRow) settings() luzia.Settings {
	return luzia.Settings{
		ClinicID:            r.ClinicID,
		Enabled:             r.Enabled,
		ConfirmAppointments: r.ConfirmAppointments,
		AutoReschedule:      r.AutoReschedule,
		AutoCancel:          r.AutoCancel,
		ConfirmLeadHours:    r.ConfirmLeadHours,
		RescheduleLeadHours: r.RescheduleLeadHours,
		ConfirmTemplate:     r.ConfirmTemplate,
		RescheduleTemplate:  r.RescheduleTemplate,
		CancelTemplate:      r.CancelTemplate,
		WhatsAppPhone:       r.WhatsAppPhone,
		WhatsAppAPIKey:      r.WhatsAppAPIKey,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (s *Store) AppendLog(ctx context.Context, e luzia.LogEntry) error {
	row := logRow{
		ID:            e.ID,
		ClinicID:      e.ClinicID,
		Action:        string(e.Action),
		Status:        string(e.Status),
		AppointmentID: e.AppointmentID,
		Message:       e.Message,
		Response:      e.Response,
		Destination:   e.Destination,
		Error:         e.Error,
		CreatedAt:     e.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if len(e.Variables) > 0 {
		row.Variables = make(map[string]any, len(e.Variables))
		for k, v := range e.Variables {
			row.Variables[k] = v
		}
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Logs returns the clinic's newest entries first. limit is clamped to MaxLogLimit.
func (s *Store) Logs(ctx context.Context, clinicID string, limit int) ([]luzia.LogEntry, error) {
	if limit <= 0 {
		limit = luzia.DefaultLogLimit
	}
	if limit > luzia.MaxLogLimit {
		limit = luzia.MaxLogLimit
	}
	var rows []logRow
	err := s.db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]luzia.LogEntry, 0, len(rows))
	for _, r := range rows {
		e := luzia.LogEntry{
			ID:            r.ID,
			ClinicID:      r.ClinicID,
			Action:        luzia.Action(r.Action),
			Status:        luzia.LogStatus(r.Status),
			AppointmentID: r.AppointmentID,
			Message:       r.Message,
			Response:      r.Response,
			Destination:   r.Destination,
			Error:         r.Error,
			CreatedAt:     r.CreatedAt,
		}
		if len(r.Variables) > 0 {
			e.Variables = make(map[string]string, len(r.Variables))
			for k, v := range r.Variables {
				e.Variables[k] = fmt.Sprint(v)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// ScheduleReminder keeps one reminder per appointment: a new plan resets it to pending.
func (s *Store) ScheduleReminder(ctx context.Context, r luzia.Reminder) error {
	row := reminderRow{
		AppointmentID: r.AppointmentID,
		ClinicID:      r.ClinicID,
		PatientName:   r.PatientName,
		Phone:         r.Phone,
		Timezone:      r.Timezone,
		StartsAt:      r.StartsAt.UTC(),
		RemindAt:      r.RemindAt.UTC(),
		Status:        string(luzia.ReminderPending),
		NextRunAt:     r.NextRunAt.UTC(),
	}
	updates := clause.AssignmentColumns([]string{
		"clinic_id", "patient_name", "phone", "timezone", "starts_at", "remind_at",
		"status", "next_run_at", "attempts", "last_error", "updated_at",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("luzia_reminders.version + 1"),
	})
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appointment_id"}},
		DoUpdates: updates,
	}).Create(&row).Error
}

func (s *Store) CancelReminders(ctx context.Context, appointmentID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&reminderRow{}).
		Where("appointment_id = ? AND status = ?", appointmentID, string(luzia.ReminderPending)).
		Updates(map[string]any{"status": string(luzia.ReminderCancelled), "version": gorm.Expr("version + 1")})
	return res.RowsAffected, res.Error
}

func (s *Store) DueReminders(ctx context.Context, now time.Time, limit int) ([]luzia.Reminder, error) {
	var rows []reminderRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", string(luzia.ReminderPending), now.UTC()).
		Order("next_run_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]luzia.Reminder, 0, len(rows))
	for _, r := range rows {
		out = append(out, luzia.Reminder{
			ID:            r.ID,
			AppointmentID: r.AppointmentID,
			ClinicID:      r.ClinicID,
			PatientName:   r.PatientName,
			Phone:         r.Phone,
			Timezone:      r.Timezone,
			StartsAt:      r.StartsAt,
			RemindAt:      r.RemindAt,
			NextRunAt:     r.NextRunAt,
			Attempts:      r.Attempts,
			Version:       r.Version,
		})
	}
	return out, nil
}

func (s *Store) ClaimReminder(ctx context.Context, r luzia.Reminder, until time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&reminderRow{}).
		Where("id = ? AND status = ? AND version = ?", r.ID, string(luzia.ReminderPending), r.Version).
		Updates(map[string]any{"next_run_at": until.UTC(), "version": gorm.Expr("version + 1")})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) CompleteReminder(ctx context.Context, r luzia.Reminder, status luzia.ReminderStatus, lastErr string) error {
	return s.updateClaimed(ctx, r, map[string]any{"status": string(status), "last_error": lastErr})
}

func (s *Store) RetryReminder(ctx context.Context, r luzia.Reminder, attempts int, next time.Time, lastErr string) error {
	return s.updateClaimed(ctx, r, map[string]any{"attempts": attempts, "next_run_at": next.UTC(), "last_error": lastErr})
}

// updateClaimed writes a worker outcome only while the row still carries the claimed version.
func (s *Store) updateClaimed(ctx context.Context, r luzia.Reminder, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&reminderRow{}).
		Where("id = ? AND version = ?", r.ID, r.Version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return luzia.ErrReminderSuperseded
	}
	return nil
}

func (s *Store) UpsertClinic(ctx context.Context, clinicID, name, timezone string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clinic_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "timezone", "updated_at"}),
	}).Create(&clinicRow{ClinicID: clinicID, Name: name, Timezone: timezone}).Error
}

func (s *Store) ClinicName(ctx context.Context, clinicID string) (string, error) {
	var row clinicRow
	err := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.Name, err
}

// Record implements kafkax.Deduper.
func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&inboxRow{}).Where("event_id = ?", eventID).Count(&n).Error
	return n > 0, err
}

func (s *Store) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&inboxRow{EventID: eventID, EventType: eventType, ReceivedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
