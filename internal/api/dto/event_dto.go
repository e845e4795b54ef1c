package dto

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
)

// IngestEventRequest is the envelope the ticket platform posts when a
// ticket's lifecycle changes.
type IngestEventRequest struct {
	Type      events.EventType `json:"type"`
	TicketID  string           `json:"ticket_id"`
	ActorID   *string          `json:"actor_id"`
	Timestamp *time.Time       `json:"timestamp"`
	Fields    map[string]any   `json:"fields"`
}

// ToEvent converts the request into a domain event.
func (r IngestEventRequest) ToEvent() events.Event {
	event := events.Event{
		Type:     r.Type,
		TicketID: r.TicketID,
		ActorID:  r.ActorID,
		Fields:   r.Fields,
	}
	if r.Timestamp != nil {
		event.Timestamp = *r.Timestamp
	}
	return event
}

// NotificationLogResponse response.
type NotificationLogResponse struct {
	ID           string                     `json:"id"`
	RuleID       *string                    `json:"rule_id"`
	TicketID     *string                    `json:"ticket_id"`
	Channel      domain.NotificationChannel `json:"channel"`
	Recipient    string                     `json:"recipient"`
	Subject      string                     `json:"subject"`
	Content      string                     `json:"content"`
	Status       domain.NotificationStatus  `json:"status"`
	ErrorMessage *string                    `json:"error_message"`
	ScheduledAt  *time.Time                 `json:"scheduled_at"`
	SentAt       *time.Time                 `json:"sent_at"`
	DeliveredAt  *time.Time                 `json:"delivered_at"`
	TriggeredBy  *string                    `json:"triggered_by"`
	Metadata     map[string]any             `json:"metadata"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// NewNotificationLogResponse maps domain to response.
func NewNotificationLogResponse(l *domain.NotificationLog) NotificationLogResponse {
	return NotificationLogResponse{
		ID:           l.ID,
		RuleID:       l.RuleID,
		TicketID:     l.TicketID,
		Channel:      l.Channel,
		Recipient:    l.Recipient,
		Subject:      l.Subject,
		Content:      l.Content,
		Status:       l.Status,
		ErrorMessage: l.ErrorMessage,
		ScheduledAt:  l.ScheduledAt,
		SentAt:       l.SentAt,
		DeliveredAt:  l.DeliveredAt,
		TriggeredBy:  l.TriggeredBy,
		Metadata:     l.Metadata,
		CreatedAt:    l.CreatedAt,
	}
}

// NewNotificationLogListResponse maps a slice of logs.
func NewNotificationLogListResponse(logs []domain.NotificationLog) []NotificationLogResponse {
	result := make([]NotificationLogResponse, 0, len(logs))
	for i := range logs {
		result = append(result, NewNotificationLogResponse(&logs[i]))
	}
	return result
}
