package domain

import "time"

// NotificationStatus tracks delivery of a single notification.
// Transitions: pending -> sent -> delivered, or pending -> failed.
// sent is terminal for channels without a delivery-confirmation path.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationDelivered NotificationStatus = "delivered"
)

// Terminal reports whether no further transition is allowed from s.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationFailed || s == NotificationDelivered
}

// NotificationLog records one delivery attempt and its outcome.
type NotificationLog struct {
	ID           string
	RuleID       *string
	TicketID     *string
	Channel      NotificationChannel
	Recipient    string
	Subject      string
	Content      string
	Status       NotificationStatus
	ErrorMessage *string
	ScheduledAt  *time.Time
	SentAt       *time.Time
	DeliveredAt  *time.Time
	TriggeredBy  *string
	Metadata     map[string]any
	CreatedAt    time.Time
}
