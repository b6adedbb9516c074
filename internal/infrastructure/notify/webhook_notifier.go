package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mandi/backend/internal/application/notification"
)

// Header names sent with every webhook call
const (
	HeaderSignature      = "X-Mandi-Signature"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// ErrGatewayRejected marks a 4xx answer from the gateway
var ErrGatewayRejected = errors.New("notification gateway rejected the message")

// WebhookNotifier posts notifications as JSON to a gateway URL.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookNotifier creates a notifier. The HTTP client is traced with otelhttp.
func NewWebhookNotifier(url, secret string, timeout time.Duration) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type webhookPayload struct {
	Channel   notification.Channel `json:"channel"`
	To        string               `json:"to"`
	Body      string               `json:"body"`
	TenantID  string               `json:"tenant_id"`
	PaymentID string               `json:"payment_id"`
	BatchID   string               `json:"batch_id"`
}

// Notify posts one message. The event id doubles as the gateway idempotency
// key so outbox retries cannot send twice.
func (w *WebhookNotifier) Notify(ctx context.Context, n notification.Notification) error {
	body, err := json.Marshal(webhookPayload{
		Channel:   n.Channel,
		To:        n.Recipient,
		Body:      n.Message,
		TenantID:  n.TenantID.String(),
		PaymentID: n.PaymentID.String(),
		BatchID:   n.BatchID.String(),
	})
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, n.EventID.String())
	if len(w.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook: gateway returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrGatewayRejected, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ notification.Notifier = (*WebhookNotifier)(nil)
