package luzia

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Backoff     time.Duration
	MaxAttempts int

	// Lease is how long a claimed reminder stays invisible to other workers.
	Lease time.Duration
}

// ReminderWorker sends confirmation reminders when they come due.
type ReminderWorker struct {
	queue      ReminderQueue
	dispatcher *Dispatcher
	logger     *slog.Logger
	cfg        WorkerConfig
}

func NewReminderWorker(queue ReminderQueue, dispatcher *Dispatcher, logger *slog.Logger, cfg WorkerConfig) *ReminderWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &ReminderWorker{queue: queue, dispatcher: dispatcher, logger: logger, cfg: cfg}
}

func (w *ReminderWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// RunOnce processes one batch of due reminders and returns how many it claimed.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.dispatcher.now()
	due, err := w.queue.DueReminders(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	claimed := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return claimed, ctx.Err()
		}
		ok, err := w.queue.ClaimReminder(ctx, r, now.Add(w.cfg.Lease))
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed++
		r.Version++
		if err := w.fire(ctx, r, now); err != nil {
			if errors.Is(err, ErrReminderSuperseded) {
				w.logger.Info("reminder changed while firing", "appointment_id", r.AppointmentID)
				continue
			}
			w.logger.Error("reminder failed", "err", err, "appointment_id", r.AppointmentID, "clinic_id", r.ClinicID)
		}
	}
	return claimed, nil
}

func (w *ReminderWorker) fire(ctx context.Context, r Reminder, now time.Time) error {
	s, err := w.dispatcher.store.Settings(ctx, r.ClinicID)
	if err != nil {
		return w.retry(ctx, r, now, err)
	}
	if !s.Enabled || !s.ConfirmAppointments {
		return w.queue.CompleteReminder(ctx, r, ReminderCancelled, "confirmations are disabled")
	}
	if !r.StartsAt.After(now) {
		return w.queue.CompleteReminder(ctx, r, ReminderCancelled, "appointment already started")
	}
	clinic, err := w.dispatcher.store.ClinicName(ctx, r.ClinicID)
	if err != nil {
		return w.retry(ctx, r, now, err)
	}
	vars := Vars(clinic, r.PatientName, r.StartsAt, time.Time{}, Location(r.Timezone))
	_, err = w.dispatcher.send(ctx, s, ActionConfirm, r.AppointmentID, r.Phone, s.ConfirmTemplate, vars)
	switch {
	case err == nil:
		return w.queue.CompleteReminder(ctx, r, ReminderSent, "")
	case isDelivery(err) && r.Phone == "":
		return w.queue.CompleteReminder(ctx, r, ReminderFailed, err.Error())
	default:
		return w.retry(ctx, r, now, err)
	}
}

func (w *ReminderWorker) retry(ctx context.Context, r Reminder, now time.Time, cause error) error {
	attempts := r.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		return w.queue.CompleteReminder(ctx, r, ReminderFailed, cause.Error())
	}
	return w.queue.RetryReminder(ctx, r, attempts, now.Add(w.cfg.Backoff*time.Duration(attempts)), cause.Error())
}
