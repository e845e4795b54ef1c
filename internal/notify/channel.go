package notify

import (
	"context"
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// Delivery is one fully resolved notification handed to a channel.
type Delivery struct {
	Recipient string
	Subject   string
	Body      string
	TicketID  *string
}

// Outcome reports what the transport confirmed. Accepted by the transport
// maps to the sent status; Confirmed additionally promotes it to delivered
// for channels with an acknowledgement path.
type Outcome struct {
	Confirmed bool
}

// Channel is the single capability all transports implement: attempt a
// delivery, report the outcome. New channels plug in here; the dispatcher's
// control flow never branches on channel identity.
type Channel interface {
	Kind() domain.NotificationChannel
	Deliver(ctx context.Context, d Delivery) (Outcome, error)
}

// Instruction is a ready-to-send notification produced by rule evaluation
// (or an ad-hoc send, in which case RuleID is nil).
type Instruction struct {
	RuleID      *string
	TicketID    *string
	Channel     domain.NotificationChannel
	Recipients  []string
	Subject     string
	Body        string
	Delay       time.Duration
	TriggeredBy *string
	Metadata    map[string]any
}
