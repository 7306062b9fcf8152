// Package payments holds the payment-link domain: request validation, the Stripe status
// mapping and the create-link flow.
package payments

import (
	"strings"
	"time"
)

type Method string

const (
	MethodCard Method = "cartao"
	MethodPix  Method = "pix"
)

type Status string

const (
	StatusPending Status = "pendente"
	StatusPaid    Status = "pago"
	StatusFailed  Status = "falhou"
	StatusExpired Status = "expirado"
)

const (
	DefaultDescription = "Pagamento DentalCare Pro"
	MaxInstallments    = 12
	Currency           = "brl"
	ListLimit          = 50
)

type Payment struct {
	ID            string     `json:"id"`
	ClinicID      string     `json:"clinic_id"`
	AppointmentID *string    `json:"appointment_id,omitempty"`
	Method        Method     `json:"method"`
	Installments  int        `json:"installments"`
	AmountCents   int64      `json:"amount_cents"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	Provider      string     `json:"provider"`
	ProviderRef   *string    `json:"provider_ref,omitempty"`
	CheckoutURL   *string    `json:"checkout_url,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// Final reports whether the payment can no longer change status.
func (p Payment) Final() bool {
	return p.Status == StatusPaid || p.Status == StatusExpired
}

type LinkRequest struct {
	AmountCents   int64   `json:"amount_cents"`
	Description   string  `json:"description"`
	Installments  int     `json:"installments"`
	Method        Method  `json:"method"`
	AppointmentID *string `json:"appointment_id"`
}

// Validate applies defaults and returns per-field messages, nil when valid.
func (r *LinkRequest) Validate() map[string]string {
	fields := map[string]string{}
	if r.AmountCents <= 0 {
		fields["amount_cents"] = "must be greater than zero"
	}
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		r.Description = DefaultDescription
	}
	if r.Method == "" {
		r.Method = MethodCard
	}
	if r.Installments == 0 {
		r.Installments = 1
	}
	switch r.Method {
	case MethodCard:
		if r.Installments < 1 || r.Installments > MaxInstallments {
			fields["installments"] = "must be between 1 and 12"
		}
	case MethodPix:
		if r.Installments != 1 {
			fields["installments"] = "pix accepts a single installment"
		}
	default:
		fields["method"] = "must be cartao or pix"
	}
	if r.AppointmentID != nil {
		id := strings.TrimSpace(*r.AppointmentID)
		if id == "" {
			r.AppointmentID = nil
		} else {
			r.AppointmentID = &id
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// StatusForEvent maps a Stripe checkout event type to the payment status it implies.
// The second result is false for events that do not move payments.
func StatusForEvent(eventType string) (Status, bool) {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return StatusPaid, true
	case "checkout.session.expired":
		return StatusExpired, true
	case "checkout.session.async_payment_failed":
		return StatusFailed, true
	}
	return "", false
}

// StatusOfSession maps a checkout session's status and payment_status. Completed sessions
// whose payment is still processing, as with pix, stay pending.
func StatusOfSession(sessionStatus, paymentStatus string) (Status, bool) {
	switch sessionStatus {
	case "complete":
		if paymentStatus == "paid" || paymentStatus == "no_payment_required" {
			return StatusPaid, true
		}
	case "expired":
		return StatusExpired, true
	}
	return "", false
}
