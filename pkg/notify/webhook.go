package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs each message as JSON to a remote URL.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (h *WebhookNotifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notify failed with status: %d", resp.StatusCode)
	}
	return nil
}
