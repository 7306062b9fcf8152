// Package reconcile heals payments whose webhooks never arrived by reading their checkout
// sessions back from Stripe.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
)

type Store interface {
	PendingSessions(ctx context.Context, olderThan time.Time, limit int) ([]payments.Payment, error)
	Transition(ctx context.Context, paymentID string, status payments.Status, at time.Time) (*payments.Payment, error)
	TryLock(ctx context.Context, key int64) (func(), error)
}

type Sessions interface {
	SessionStatus(ctx context.Context, sessionID string) (payments.Status, bool, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	// MinAge skips sessions younger than this so webhooks get the first chance.
	MinAge  time.Duration
	LockKey int64
}

type StripeReconciler struct {
	store    Store
	sessions Sessions
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewStripeReconciler(store Store, sessions Sessions, logger *slog.Logger, cfg Config) *StripeReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 10 * time.Minute
	}
	if cfg.LockKey == 0 {
		cfg.LockKey = 4242001
	}
	return &StripeReconciler{store: store, sessions: sessions, logger: logger, cfg: cfg, now: time.Now}
}

// Run reconciles on every tick while this instance holds the advisory lock. Instances
// without the lock retry on the next tick.
func (r *StripeReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	var release func()
	defer func() {
		if release != nil {
			release()
		}
	}()
	for {
		if release == nil {
			var err error
			release, err = r.store.TryLock(ctx, r.cfg.LockKey)
			switch {
			case err != nil:
				r.logger.Error("stripe reconcile: advisory lock failed", "err", err)
			case release == nil:
				r.logger.Debug("stripe reconcile: lock held by another instance", "lock_key", r.cfg.LockKey)
			default:
				r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.cfg.LockKey)
			}
		}
		if release != nil {
			r.ReconcileOnce(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce checks one batch of stale pending sessions and returns how many payments
// changed status.
func (r *StripeReconciler) ReconcileOnce(ctx context.Context) int {
	pending, err := r.store.PendingSessions(ctx, r.now().Add(-r.cfg.MinAge), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: list pending failed", "err", err)
		return 0
	}
	changed := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return changed
		}
		if p.ProviderRef == nil || *p.ProviderRef == "" {
			continue
		}
		status, ok, err := r.sessions.SessionStatus(ctx, *p.ProviderRef)
		if err != nil {
			r.logger.Warn("stripe reconcile: session lookup failed", "err", err, "payment_id", p.ID)
			continue
		}
		if !ok {
			continue
		}
		updated, err := r.store.Transition(ctx, p.ID, status, r.now())
		if err != nil {
			r.logger.Error("stripe reconcile: transition failed", "err", err, "payment_id", p.ID)
			continue
		}
		if updated != nil {
			changed++
			r.logger.Info("stripe reconcile: payment updated", "payment_id", p.ID, "clinic_id", p.ClinicID, "status", updated.Status)
		}
	}
	return changed
}
