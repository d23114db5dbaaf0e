package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookPublisher POSTs audit events to an HTTP endpoint. Bodies are signed
// with HMAC-SHA256. Non-2xx responses are errors so the outbox dispatcher
// retries and eventually dead-letters them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookPublisher signs with secret. A non-positive timeout means
// defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends the envelope as JSON with these headers:
//
//	X-Precheck-Topic:       <topic>
//	X-Precheck-Event-Id:    <event.EventID>
//	X-Precheck-Event-Type:  <event.EventType>, the audit action
//	X-Precheck-Tenant:      <event.TenantID>
//	X-Hub-Signature-256:    sha256=<hex HMAC-SHA256 of the body>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Precheck-Topic", topic)
	req.Header.Set("X-Precheck-Event-Id", event.EventID)
	req.Header.Set("X-Precheck-Event-Type", event.EventType)
	req.Header.Set("X-Precheck-Tenant", event.TenantID)
	req.Header.Set("X-Hub-Signature-256", "sha256="+Sign(p.secret, payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is a valid X-Hub-Signature-256 for payload.
func Verify(secret, payload []byte, header string) bool {
	want := "sha256=" + Sign(secret, payload)
	return hmac.Equal([]byte(want), []byte(header))
}
