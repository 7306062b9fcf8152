package luzia

import (
	"context"
	"errors"
	"time"
)

type Action string

const (
	ActionConfirm    Action = "confirmacao"
	ActionReschedule Action = "reagendamento"
	ActionCancel     Action = "cancelamento"
)

type LogStatus string

const (
	LogSuccess LogStatus = "sucesso"
	LogError   LogStatus = "erro"
	LogSkipped LogStatus = "ignorado"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

// LogEntry is one row of the append-only activity log.
type LogEntry struct {
	ID            string            `json:"id"`
	ClinicID      string            `json:"clinic_id"`
	Action        Action            `json:"tipo_acao"`
	Status        LogStatus         `json:"status"`
	AppointmentID string            `json:"appointment_id,omitempty"`
	Message       string            `json:"mensagem_enviada,omitempty"`
	Response      string            `json:"resposta,omitempty"`
	Destination   string            `json:"telefone_destino,omitempty"`
	Error         string            `json:"erro,omitempty"`
	Variables     map[string]string `json:"variaveis,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pendente"
	ReminderSent      ReminderStatus = "enviado"
	ReminderCancelled ReminderStatus = "cancelado"
	ReminderFailed    ReminderStatus = "falhou"
)

// Reminder is a planned confirmation message, one per appointment.
type Reminder struct {
	ID            int64
	AppointmentID string
	ClinicID      string
	PatientName   string
	Phone         string
	Timezone      string
	StartsAt      time.Time
	RemindAt      time.Time
	NextRunAt     time.Time
	Attempts      int

	// Version changes on every claim, re-plan and cancel. Completion only applies to the
	// version the worker claimed.
	Version int
}

// ErrReminderSuperseded reports that a reminder was re-planned or cancelled after it was
// claimed, so the worker's outcome no longer applies.
var ErrReminderSuperseded = errors.New("reminder superseded")

// Store is the persistence the dispatcher needs.
type Store interface {
	// Settings returns the clinic's saved settings or DefaultSettings.
	Settings(ctx context.Context, clinicID string) (Settings, error)
	// ClinicName returns "" for a clinic the directory has not seen.
	ClinicName(ctx context.Context, clinicID string) (string, error)
	AppendLog(ctx context.Context, e LogEntry) error
	// ScheduleReminder replaces the appointment's reminder with r, pending again.
	ScheduleReminder(ctx context.Context, r Reminder) error
	CancelReminders(ctx context.Context, appointmentID string) (int64, error)
}

// ReminderQueue is the persistence the reminder worker needs on top of Store.
type ReminderQueue interface {
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	// ClaimReminder pushes r's next run to until unless another worker claimed r since it
	// was read.
	ClaimReminder(ctx context.Context, r Reminder, until time.Time) (bool, error)
	// CompleteReminder and RetryReminder apply only while r.Version is still current and
	// return ErrReminderSuperseded otherwise.
	CompleteReminder(ctx context.Context, r Reminder, status ReminderStatus, lastErr string) error
	RetryReminder(ctx context.Context, r Reminder, attempts int, next time.Time, lastErr string) error
}
