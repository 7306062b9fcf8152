package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79/webhook"
)

const stripeWebhookPath = "/api/v1/payments/webhooks/stripe"

type simEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentID     string
	ClinicID      string
	PaymentStatus string
	Created       time.Time
}

func webhookSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook-sim",
		Short: "Post a signed Stripe checkout event to the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			baseURL, _ := flags.GetString("base-url")
			secret, _ := flags.GetString("secret")
			ev := simEvent{Created: time.Now().UTC()}
			ev.Type, _ = flags.GetString("type")
			ev.PaymentID, _ = flags.GetString("payment-id")
			ev.ClinicID, _ = flags.GetString("clinic-id")
			ev.SessionID, _ = flags.GetString("session-id")
			ev.PaymentStatus, _ = flags.GetString("payment-status")
			ev.ID, _ = flags.GetString("event-id")

			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
			}
			if strings.TrimSpace(ev.PaymentID) == "" {
				return fmt.Errorf("--payment-id is required")
			}
			if ev.ID == "" {
				ev.ID = fmt.Sprintf("evt_test_%d", ev.Created.UnixNano())
			}

			req, err := signedWebhookRequest(baseURL, secret, ev)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			fmt.Fprintf(cmd.OutOrStdout(), "status=%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "Gateway base URL")
	flags.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "Webhook signing secret (whsec_...)")
	flags.String("type", "checkout.session.completed", "Stripe event type")
	flags.String("payment-id", "", "payment_id metadata of the checkout session")
	flags.String("clinic-id", "", "clinic_id metadata of the checkout session")
	flags.String("session-id", "cs_test_sim", "Checkout session id")
	flags.String("payment-status", "paid", "Session payment_status (paid, unpaid, no_payment_required)")
	flags.String("event-id", "", "Event id, generated when empty; reuse one to test deduplication")
	return cmd
}

func eventPayload(ev simEvent) ([]byte, error) {
	if !strings.HasPrefix(ev.Type, "checkout.session.") {
		return nil, fmt.Errorf("unsupported event type %q", ev.Type)
	}
	status := "open"
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
		status = "complete"
	case "checkout.session.expired":
		status = "expired"
	}
	metadata := map[string]string{"payment_id": ev.PaymentID}
	if ev.ClinicID != "" {
		metadata["clinic_id"] = ev.ClinicID
	}
	return json.Marshal(map[string]any{
		"id":          ev.ID,
		"object":      "event",
		"created":     ev.Created.Unix(),
		"type":        ev.Type,
		"api_version": "2024-06-20",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  ev.SessionID,
				"object":              "checkout.session",
				"status":              status,
				"payment_status":      ev.PaymentStatus,
				"client_reference_id": ev.PaymentID,
				"metadata":            metadata,
			},
		},
	})
}

func signedWebhookRequest(baseURL, secret string, ev simEvent) (*http.Request, error) {
	payload, err := eventPayload(ev)
	if err != nil {
		return nil, err
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ev.Created,
		Scheme:    "v1",
	})
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+stripeWebhookPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req, nil
}
