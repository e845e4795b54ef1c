package notify

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
	"strings"
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// WebhookChannel posts a JSON envelope to an outbound HTTP endpoint. The
// recipient is either a full URL or the name of an endpoint configured in
// the endpoint map. Payloads are signed with HMAC-SHA256 when a secret is
// configured.
type WebhookChannel struct {
	endpoints  map[string]string
	secret     string
	httpClient *http.Client
}

type webhookEnvelope struct {
	Subject  string  `json:"subject"`
	Body     string  `json:"body"`
	TicketID *string `json:"ticket_id,omitempty"`
	SentAt   string  `json:"sent_at"`
}

// NewWebhookChannel creates the channel.
func NewWebhookChannel(endpoints map[string]string, secret string, httpClient *http.Client) *WebhookChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookChannel{endpoints: endpoints, secret: secret, httpClient: httpClient}
}

// Kind identifies the channel.
func (c *WebhookChannel) Kind() domain.NotificationChannel {
	return domain.ChannelWebhook
}

// Deliver posts the envelope. A 2xx is acceptance only; webhooks carry no
// delivery acknowledgement, so the outcome stays at sent.
func (c *WebhookChannel) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	url, err := c.resolveURL(d.Recipient)
	if err != nil {
		return Outcome{}, err
	}

	payload, err := json.Marshal(webhookEnvelope{
		Subject:  d.Subject,
		Body:     d.Body,
		TicketID: d.TicketID,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		mac := hmac.New(sha256.New, []byte(c.secret))
		mac.Write(payload)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{}, fmt.Errorf("webhook %s returned status %d", d.Recipient, resp.StatusCode)
	}
	return Outcome{Confirmed: false}, nil
}

func (c *WebhookChannel) resolveURL(recipient string) (string, error) {
	if strings.HasPrefix(recipient, "http://") || strings.HasPrefix(recipient, "https://") {
		return recipient, nil
	}
	if url, ok := c.endpoints[recipient]; ok {
		return url, nil
	}
	return "", fmt.Errorf("unknown webhook endpoint %q", recipient)
}
