package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/oshokin/upkeep/internal/logger"
)

var errBadHTTPStatus = errors.New("unexpected http status")

// webhookPayload is compatible with the incoming-webhook format of common chat services.
type webhookPayload struct {
	Text     string `json:"text"`
	Hostname string `json:"hostname,omitempty"`
}

// WebhookSink posts every message as JSON to a URL.
type WebhookSink struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewWebhookSink creates a sink posting to url with the given client.
func NewWebhookSink(client *http.Client, url string, timeout time.Duration) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}

	return &WebhookSink{
		client:  client,
		url:     url,
		timeout: timeout,
	}
}

// Notify implements Sink.
func (s *WebhookSink) Notify(ctx context.Context, message string) {
	if err := s.post(ctx, message); err != nil {
		logger.ErrorKV(ctx, "Webhook notification failed", "error", err, "message", message)
	}
}

func (s *WebhookSink) post(ctx context.Context, message string) error {
	hostname, _ := os.Hostname()

	body, err := json.Marshal(webhookPayload{Text: message, Hostname: hostname})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s, %s: %w", s.url, resp.Status, errBadHTTPStatus)
	}

	return nil
}
