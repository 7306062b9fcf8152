package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/dentalcare/libs/authz"
)

// Register mounts the billing routes. The Stripe webhook is public; the rest trust the
// principal headers set by the gateway.
func Register(mux *http.ServeMux, p *PaymentsHandler, wh *WebhookHandler) {
	mux.HandleFunc("POST /api/v1/payments/webhooks/stripe", wh.Stripe)
	mux.Handle("POST /api/v1/payments/links", guard(authz.ManagePayments, p.CreateLink))
	mux.Handle("GET /api/v1/payments", guard(authz.ViewPayments, p.List))
	mux.Handle("GET /api/v1/payments/{id}", guard(authz.ViewPayments, p.Get))
}

func guard(a authz.Action, h http.HandlerFunc) http.Handler {
	return authz.Authenticate(authz.Require(a)(h))
}
