package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

var (
	// ErrKeyReused is returned when an idempotency key comes back with a different request.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
	ErrProvider  = errors.New("payment provider failure")
)

type Session struct {
	ID  string
	URL string
}

type Store interface {
	UpsertPending(ctx context.Context, clinicID, actorID, key string, req LinkRequest) (Payment, error)
	AttachSession(ctx context.Context, clinicID, id, sessionID, url string) (Payment, error)
	MarkFailed(ctx context.Context, clinicID, id, reason string) error
}

type Gateway interface {
	CreateSession(ctx context.Context, p Payment) (Session, error)
}

type Service struct {
	store   Store
	gateway Gateway
	logger  *slog.Logger
}

func NewService(store Store, gateway Gateway, logger *slog.Logger) *Service {
	return &Service{store: store, gateway: gateway, logger: logger}
}

// CreateLink inserts or reuses the pending payment for the idempotency key, opens a checkout
// session for it and stores the session on the row. A provider failure marks the row falhou.
// An empty key makes the call non-idempotent.
func (s *Service) CreateLink(ctx context.Context, clinicID, actorID, key string, req LinkRequest) (Payment, error) {
	if key == "" {
		key = uuid.NewString()
	}
	p, err := s.store.UpsertPending(ctx, clinicID, actorID, key, req)
	if err != nil {
		return Payment{}, err
	}
	if !sameRequest(p, req) {
		return Payment{}, ErrKeyReused
	}
	if p.Status != StatusPending || p.CheckoutURL != nil {
		return p, nil
	}

	sess, err := s.gateway.CreateSession(ctx, p)
	if err != nil {
		s.logger.Error("checkout session failed", "err", err, "payment_id", p.ID, "clinic_id", clinicID)
		if mErr := s.store.MarkFailed(context.WithoutCancel(ctx), clinicID, p.ID, err.Error()); mErr != nil {
			s.logger.Error("mark payment failed", "err", mErr, "payment_id", p.ID)
		}
		return Payment{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return s.store.AttachSession(ctx, clinicID, p.ID, sess.ID, sess.URL)
}

func sameRequest(p Payment, req LinkRequest) bool {
	return p.AmountCents == req.AmountCents && p.Method == req.Method && p.Installments == req.Installments
}
