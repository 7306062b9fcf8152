package luzia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("whatsapp webhook url not configured")

type Message struct {
	ClinicID string `json:"clinic_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body"`
	// APIKey is the clinic's provider key, sent as a bearer token.
	APIKey string `json:"-"`
}

// Messenger delivers one message and returns the provider's response text.
type Messenger interface {
	Send(ctx context.Context, m Message) (string, error)
}

// WebhookSender posts messages as JSON to a WhatsApp provider bridge.
type WebhookSender struct {
	url  string
	http *http.Client
}

// NewWebhookSender uses client when given; its transport is where tracing is attached.
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout == 0 {
		client.Timeout = 5 * time.Second
	}
	return &WebhookSender{url: strings.TrimSpace(url), http: client}
}

func (s *WebhookSender) Send(ctx context.Context, m Message) (string, error) {
	if s.url == "" {
		return "", ErrNotConfigured
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(body), fmt.Errorf("whatsapp webhook returned %d", resp.StatusCode)
	}
	return string(body), nil
}

// NoopSender accepts every message; for local runs without a provider.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) (string, error) { return "noop", nil }
