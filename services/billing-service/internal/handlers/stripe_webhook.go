package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/storage"
)

type EventStore interface {
	ApplyProviderEvent(ctx context.Context, evt storage.ProviderEvent) (*payments.Payment, error)
}

type WebhookHandler struct {
	store     EventStore
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewWebhookHandler(store EventStore, secret string, tolerance time.Duration, logger *slog.Logger) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{store: store, secret: strings.TrimSpace(secret), tolerance: tolerance, logger: logger}
}

// Stripe handles Stripe webhooks. The signature is the authentication, so the gateway
// exposes this path without a token.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "stripe webhook not configured")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sig, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "invalid signature")
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	rec := storage.ProviderEvent{ID: evt.ID, Type: evtType, Payload: body, OccurredAt: occurredAt}
	if status, ok := payments.StatusForEvent(evtType); ok {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err, "provider_event_id", evt.ID)
		} else if status != payments.StatusPaid || paidSession(session) {
			rec.Status = status
			rec.SessionID = session.ID
			rec.PaymentID = strings.TrimSpace(session.Metadata["payment_id"])
			if rec.PaymentID == "" {
				rec.PaymentID = session.ClientReferenceID
			}
		}
	}

	p, err := h.store.ApplyProviderEvent(r.Context(), rec)
	if errors.Is(err, storage.ErrDuplicateProviderEvent) {
		h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	if err != nil {
		h.logger.Error("stripe webhook apply failed", "err", err, "provider_event_id", evt.ID)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
		return
	}
	if p != nil {
		h.logger.Info("payment status changed", "payment_id", p.ID, "clinic_id", p.ClinicID, "status", p.Status)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// paidSession reports whether a completed session actually collected the money. Pix
// completes first and succeeds asynchronously.
func paidSession(s stripe.CheckoutSession) bool {
	return s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired ||
		s.PaymentStatus == ""
}
