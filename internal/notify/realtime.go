package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// Publisher is the pub/sub capability the realtime channel needs.
// persistence.Redis satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// RealtimeChannel pushes notifications over redis pub/sub. The gateway that
// holds user websockets subscribes to push:user:<id>; a positive receiver
// count is the delivery confirmation.
type RealtimeChannel struct {
	publisher Publisher
}

type realtimePayload struct {
	Subject  string  `json:"subject"`
	Body     string  `json:"body"`
	TicketID *string `json:"ticket_id,omitempty"`
	SentAt   string  `json:"sent_at"`
}

// NewRealtimeChannel creates the channel.
func NewRealtimeChannel(publisher Publisher) *RealtimeChannel {
	return &RealtimeChannel{publisher: publisher}
}

// Kind identifies the channel.
func (c *RealtimeChannel) Kind() domain.NotificationChannel {
	return domain.ChannelRealtime
}

// Deliver publishes to the recipient's push channel. No connected subscriber
// is not an error: the message was accepted, just not confirmed.
func (c *RealtimeChannel) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	payload, err := json.Marshal(realtimePayload{
		Subject:  d.Subject,
		Body:     d.Body,
		TicketID: d.TicketID,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal realtime payload: %w", err)
	}

	receivers, err := c.publisher.Publish(ctx, "push:user:"+d.Recipient, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("publish realtime push: %w", err)
	}
	return Outcome{Confirmed: receivers > 0}, nil
}
