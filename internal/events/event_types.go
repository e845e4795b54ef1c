package events

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// EventType enumerates the domain events the engine reacts to. The values
// line up with domain.RuleTrigger so rules can be matched by string.
type EventType string

const (
	EventInquiryCreated EventType = EventType(domain.TriggerInquiryCreated)
	EventStatusChanged  EventType = EventType(domain.TriggerStatusChanged)
	EventResponseAdded  EventType = EventType(domain.TriggerResponseAdded)
	EventSlaViolation   EventType = EventType(domain.TriggerSlaViolation)
	EventEscalation     EventType = EventType(domain.TriggerEscalation)
)

// KnownEventType reports whether t is a defined event type.
func KnownEventType(t EventType) bool {
	return domain.KnownTrigger(domain.RuleTrigger(t))
}

// Event is a domain event flowing through the engine. Fields is a flat map
// so rule conditions can address payload values by name; ActorID is nil for
// system-originated events.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Trigger returns the event type as a rule trigger.
func (e Event) Trigger() domain.RuleTrigger {
	return domain.RuleTrigger(e.Type)
}

// SlaViolationFields builds the payload for a sla_violation event.
func SlaViolationFields(v *domain.SlaViolation, t *domain.Ticket) map[string]any {
	return map[string]any{
		"violation_id":   v.ID,
		"kind":           string(v.Kind),
		"severity":       string(v.Severity),
		"delay_hours":    v.DelayHours,
		"expected_at":    v.ExpectedAt.Format(time.RFC3339),
		"application_id": t.ApplicationID,
		"priority":       string(t.Priority),
		"status":         string(t.Status),
	}
}

// EscalationFields builds the payload for an escalation event.
func EscalationFields(e *domain.Escalation) map[string]any {
	fields := map[string]any{
		"escalation_id": e.ID,
		"level":         e.Level,
		"reason":        string(e.Reason),
		"to_assignee":   e.ToAssignee,
		"automatic":     e.Automatic,
	}
	if e.FromAssignee != nil {
		fields["from_assignee"] = *e.FromAssignee
	}
	return fields
}
