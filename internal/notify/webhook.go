package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HeaderEventType carries the event type on webhook deliveries.
const HeaderEventType = "X-Laneboard-Event"

// WebhookSink POSTs every event as JSON to an HTTP endpoint.
type WebhookSink struct {
	name   string
	url    string
	token  string
	client *http.Client
}

// NewWebhookSink creates a webhook sink. A non-empty token is sent as a
// bearer token. A nil client means http.DefaultClient; delivery deadlines
// come from the fanout's worker pool.
func NewWebhookSink(name, url, token string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{name: name, url: url, token: token, client: client}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.name }

func (s *WebhookSink) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, ev.Type)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A short excerpt is enough to tell what the receiver complained about.
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s returned status %d: %s", s.name, resp.StatusCode, bytes.TrimSpace(excerpt))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
