package luzia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
)

type Dispatcher struct {
	store     Store
	messenger Messenger
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(store Store, messenger Messenger, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, messenger: messenger, logger: logger, now: time.Now}
}

// Handler consumes the appointment topics.
func (d *Dispatcher) Handler() kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.MetaOf(msg)
		var p events.AppointmentPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			d.logger.Error("invalid appointment payload", "err", err, "event_id", meta.EventID)
			return nil
		}
		if p.ClinicID == "" || p.AppointmentID == "" {
			return errors.New("appointment event without clinic_id or appointment_id")
		}
		s, err := d.store.Settings(ctx, p.ClinicID)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		switch meta.EventType {
		case events.AppointmentCreated:
			return d.planReminder(ctx, s, p)
		case events.AppointmentRescheduled:
			return d.rescheduled(ctx, s, p)
		case events.AppointmentCancelled:
			return d.cancelled(ctx, s, p)
		}
		return nil
	}
}

// planReminder schedules the confirmation at starts_at minus the lead time, or now when
// that moment has already passed. Past appointments get no reminder.
func (d *Dispatcher) planReminder(ctx context.Context, s Settings, p events.AppointmentPayload) error {
	if !s.Enabled || !s.ConfirmAppointments {
		_, err := d.store.CancelReminders(ctx, p.AppointmentID)
		return err
	}
	now := d.now()
	if !p.StartsAt.After(now) {
		return nil
	}
	remindAt := p.StartsAt.Add(-time.Duration(s.ConfirmLeadHours) * time.Hour)
	if remindAt.Before(now) {
		remindAt = now
	}
	return d.store.ScheduleReminder(ctx, Reminder{
		AppointmentID: p.AppointmentID,
		ClinicID:      p.ClinicID,
		PatientName:   p.PatientName,
		Phone:         p.PatientPhone,
		Timezone:      p.Timezone,
		StartsAt:      p.StartsAt,
		RemindAt:      remindAt,
		NextRunAt:     remindAt,
	})
}

// rescheduled notifies the patient unless the new time falls inside the reschedule lead
// window, then re-plans the confirmation.
func (d *Dispatcher) rescheduled(ctx context.Context, s Settings, p events.AppointmentPayload) error {
	if s.Enabled && s.AutoReschedule {
		clinic, err := d.store.ClinicName(ctx, p.ClinicID)
		if err != nil {
			return err
		}
		vars := Vars(clinic, p.PatientName, p.PreviousStartsAt, p.StartsAt, Location(p.Timezone))
		if p.StartsAt.Sub(d.now()) < time.Duration(s.RescheduleLeadHours)*time.Hour {
			if err := d.skip(ctx, s, ActionReschedule, p.AppointmentID, p.PatientPhone, "new time is inside the reschedule lead window"); err != nil {
				return err
			}
		} else if _, err := d.send(ctx, s, ActionReschedule, p.AppointmentID, p.PatientPhone, s.RescheduleTemplate, vars); err != nil && !isDelivery(err) {
			return err
		}
	}
	return d.planReminder(ctx, s, p)
}

func (d *Dispatcher) cancelled(ctx context.Context, s Settings, p events.AppointmentPayload) error {
	if _, err := d.store.CancelReminders(ctx, p.AppointmentID); err != nil {
		return err
	}
	if !s.Enabled || !s.AutoCancel {
		return nil
	}
	clinic, err := d.store.ClinicName(ctx, p.ClinicID)
	if err != nil {
		return err
	}
	vars := Vars(clinic, p.PatientName, p.StartsAt, time.Time{}, Location(p.Timezone))
	if _, err := d.send(ctx, s, ActionCancel, p.AppointmentID, p.PatientPhone, s.CancelTemplate, vars); err != nil && !isDelivery(err) {
		return err
	}
	return nil
}

// deliveryError is a failed send that has already been written to the activity log.
type deliveryError struct{ err error }

func (e *deliveryError) Error() string { return e.err.Error() }
func (e *deliveryError) Unwrap() error { return e.err }

func isDelivery(err error) bool {
	var de *deliveryError
	return errors.As(err, &de)
}

var errNoPhone = errors.New("patient has no phone number")

// send renders and delivers one message and logs the attempt. A delivery failure comes
// back as *deliveryError; any other error means the log row could not be written.
func (d *Dispatcher) send(ctx context.Context, s Settings, action Action, appointmentID, phone, tpl string, vars map[string]string) (string, error) {
	if phone == "" {
		if err := d.skip(ctx, s, action, appointmentID, "", errNoPhone.Error()); err != nil {
			return "", err
		}
		return "", &deliveryError{errNoPhone}
	}
	body := Render(tpl, vars)
	entry := LogEntry{
		ClinicID:      s.ClinicID,
		Action:        action,
		AppointmentID: appointmentID,
		Message:       body,
		Destination:   phone,
		Variables:     vars,
	}
	resp, sendErr := d.messenger.Send(ctx, Message{ClinicID: s.ClinicID, From: s.WhatsAppPhone, To: phone, Body: body, APIKey: s.WhatsAppAPIKey})
	entry.Response = resp
	entry.Status = LogSuccess
	if sendErr != nil {
		entry.Status = LogError
		entry.Error = sendErr.Error()
		d.logger.Warn("luzia message failed", "err", sendErr, "clinic_id", s.ClinicID, "appointment_id", appointmentID, "action", action)
	}
	if err := d.store.AppendLog(ctx, entry); err != nil {
		return "", fmt.Errorf("append log: %w", err)
	}
	if sendErr != nil {
		return "", &deliveryError{sendErr}
	}
	return resp, nil
}

func (d *Dispatcher) skip(ctx context.Context, s Settings, action Action, appointmentID, phone, reason string) error {
	return d.store.AppendLog(ctx, LogEntry{
		ClinicID:      s.ClinicID,
		Action:        action,
		Status:        LogSkipped,
		AppointmentID: appointmentID,
		Destination:   phone,
		Error:         reason,
	})
}
