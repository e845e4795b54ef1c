package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ticketops/sla-engine/internal/domain"
)

// ChatChannel posts Slack-compatible messages to the configured workspace
// webhook. The recipient becomes a mention prefix so one webhook serves many
// addressees.
type ChatChannel struct {
	webhookURL string
	httpClient *http.Client
}

type chatMessage struct {
	Text string `json:"text"`
}

// NewChatChannel creates the channel.
func NewChatChannel(webhookURL string, httpClient *http.Client) *ChatChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatChannel{webhookURL: webhookURL, httpClient: httpClient}
}

// Kind identifies the channel.
func (c *ChatChannel) Kind() domain.NotificationChannel {
	return domain.ChannelChat
}

// Deliver posts the message. Chat webhooks acknowledge acceptance only, so
// the outcome stays at sent.
func (c *ChatChannel) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	if c.webhookURL == "" {
		return Outcome{}, fmt.Errorf("chat webhook not configured")
	}

	text := d.Body
	if d.Subject != "" {
		text = d.Subject + "\n" + text
	}
	if d.Recipient != "" {
		text = fmt.Sprintf("<@%s> %s", d.Recipient, text)
	}

	payload, err := json.Marshal(chatMessage{Text: text})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("post chat webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{}, fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
	return Outcome{Confirmed: false}, nil
}
