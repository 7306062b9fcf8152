// Package checkout creates and reads Stripe Checkout sessions through an injected client.
package checkout

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/md-rashed-zaman/dentalcare/services/billing-service/internal/payments"
)

var ErrNotConfigured = errors.New("stripe is not configured")

type Config struct {
	SuccessURL string
	CancelURL  string
}

// Stripe wraps a *client.API built by main; tests point it at a fake backend.
type Stripe struct {
	api *client.API
	cfg Config
}

// NewClient builds a Stripe API client for key. Backends may be nil for the defaults.
func NewClient(key string, backends *stripe.Backends) *client.API {
	sc := &client.API{}
	sc.Init(strings.TrimSpace(key), backends)
	return sc
}

func NewStripe(api *client.API, cfg Config) *Stripe {
	return &Stripe{api: api, cfg: cfg}
}

// CreateSession opens a BRL checkout session for the payment. The payment id travels as
// client reference and metadata so webhooks can find the row.
func (s *Stripe) CreateSession(ctx context.Context, p payments.Payment) (payments.Session, error) {
	if s == nil || s.api == nil {
		return payments.Session{}, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(p.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(payments.Currency),
				UnitAmount:  stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(p.Description)},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	switch p.Method {
	case payments.MethodPix:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"pix"})
	default:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		if p.Installments > 1 {
			params.PaymentMethodOptions = &stripe.CheckoutSessionPaymentMethodOptionsParams{
				Card: &stripe.CheckoutSessionPaymentMethodOptionsCardParams{
					Installments: &stripe.CheckoutSessionPaymentMethodOptionsCardInstallmentsParams{
						Enabled: stripe.Bool(true),
					},
				},
			}
		}
	}
	params.AddMetadata("payment_id", p.ID)
	params.AddMetadata("clinic_id", p.ClinicID)
	params.AddMetadata("installments", strconv.Itoa(p.Installments))
	params.SetIdempotencyKey("payment-link-" + p.ID)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return payments.Session{}, err
	}
	return payments.Session{ID: sess.ID, URL: sess.URL}, nil
}

// SessionStatus reads a session back and maps it to a payment status. The second result
// is false while the session is still open and unpaid.
func (s *Stripe) SessionStatus(ctx context.Context, sessionID string) (payments.Status, bool, error) {
	if s == nil || s.api == nil {
		return "", false, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", false, err
	}
	st, ok := payments.StatusOfSession(string(sess.Status), string(sess.PaymentStatus))
	return st, ok, nil
}
