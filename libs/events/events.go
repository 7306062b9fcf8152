// Package events declares the Kafka topics shared between services and their payloads.
// The topic name is the event type.
package events

import "time"

const (
	ClinicCreated             = "auth.clinic.created.v1"
	UserInvited               = "auth.user.invited.v1"
	EmailConfirmationRequired = "auth.email_confirmation.requested.v1"
	PasswordResetRequested    = "auth.password_reset.requested.v1"

	AppointmentCreated     = "clinic.appointment.created.v1"
	AppointmentRescheduled = "clinic.appointment.rescheduled.v1"
	AppointmentCancelled   = "clinic.appointment.cancelled.v1"

	PaymentPaid = "billing.payment.paid.v1"
)

// AuthTopics and AppointmentTopics are the subscriptions of luzia-service.
var (
	AuthTopics        = []string{ClinicCreated, UserInvited, EmailConfirmationRequired, PasswordResetRequested}
	AppointmentTopics = []string{AppointmentCreated, AppointmentRescheduled, AppointmentCancelled}
)

type ClinicCreatedPayload struct {
	ClinicID   string    `json:"clinic_id"`
	ClinicName string    `json:"clinic_name"`
	OwnerID    string    `json:"owner_id"`
	OwnerEmail string    `json:"owner_email"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserInvitedPayload carries the raw invite token; only the hash is stored by auth-service.
type UserInvitedPayload struct {
	ClinicID  string    `json:"clinic_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type EmailTokenPayload struct {
	ClinicID  string    `json:"clinic_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AppointmentPayload struct {
	AppointmentID    string    `json:"appointment_id"`
	ClinicID         string    `json:"clinic_id"`
	Title            string    `json:"title"`
	PatientID        string    `json:"patient_id,omitempty"`
	PatientName      string    `json:"patient_name,omitempty"`
	PatientPhone     string    `json:"patient_phone,omitempty"`
	ProfessionalName string    `json:"professional_name,omitempty"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	PreviousStartsAt time.Time `json:"previous_starts_at,omitempty"`
	Timezone         string    `json:"timezone"`
	Status           string    `json:"status"`
}

type PaymentPaidPayload struct {
	PaymentID     string    `json:"payment_id"`
	ClinicID      string    `json:"clinic_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paid_at"`
}
