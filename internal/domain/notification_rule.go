package domain

import (
	"fmt"
	"strings"
	"time"
)

// RuleTrigger is the domain-event category a notification rule listens for.
type RuleTrigger string

const (
	TriggerInquiryCreated RuleTrigger = "inquiry_created"
	TriggerStatusChanged  RuleTrigger = "status_changed"
	TriggerResponseAdded  RuleTrigger = "response_added"
	TriggerSlaViolation   RuleTrigger = "sla_violation"
	TriggerEscalation     RuleTrigger = "escalation"
)

// KnownTrigger reports whether t is a defined trigger.
func KnownTrigger(t RuleTrigger) bool {
	switch t {
	case TriggerInquiryCreated, TriggerStatusChanged, TriggerResponseAdded,
		TriggerSlaViolation, TriggerEscalation:
		return true
	}
	return false
}

// ConditionOperator is the closed set of comparison operators a rule
// condition may use.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpContains    ConditionOperator = "contains"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "not_in"
)

// RuleCondition compares one event field against an operand. All conditions
// of a rule must match for the rule to fire.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value,omitempty"`
	Values   []string          `json:"values,omitempty"`
}

// Validate rejects malformed conditions at rule-creation time so evaluation
// never sees an unknown operator or missing operand.
func (c RuleCondition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("condition field is required")
	}
	switch c.Operator {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan:
		if c.Value == "" {
			return fmt.Errorf("operator %q requires a value", c.Operator)
		}
	case OpIn, OpNotIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("operator %q requires a values list", c.Operator)
		}
	default:
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	return nil
}

// NotificationChannel is the closed set of delivery channels.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelChat     NotificationChannel = "chat"
	ChannelWebhook  NotificationChannel = "webhook"
	ChannelRealtime NotificationChannel = "realtime"
)

// KnownChannel reports whether ch is a defined channel.
func KnownChannel(ch NotificationChannel) bool {
	switch ch {
	case ChannelEmail, ChannelChat, ChannelWebhook, ChannelRealtime:
		return true
	}
	return false
}

// RuleAction describes one notification to send when the rule fires.
// Subject and Body may contain {{field}} placeholders substituted from the
// event payload.
type RuleAction struct {
	Channel      NotificationChannel `json:"channel"`
	Recipients   []string            `json:"recipients"`
	Subject      string              `json:"subject,omitempty"`
	Body         string              `json:"body,omitempty"`
	DelayMinutes int                 `json:"delay_minutes,omitempty"`
}

// Validate rejects malformed actions at rule-creation time.
func (a RuleAction) Validate() error {
	if !KnownChannel(a.Channel) {
		return fmt.Errorf("unknown channel %q", a.Channel)
	}
	if len(a.Recipients) == 0 {
		return fmt.Errorf("action requires at least one recipient")
	}
	for _, r := range a.Recipients {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("empty recipient")
		}
	}
	if a.DelayMinutes < 0 {
		return fmt.Errorf("delay_minutes must not be negative")
	}
	return nil
}

// NotificationRule matches a trigger plus conditions against domain events
// and lists the actions to execute when all conditions hold.
type NotificationRule struct {
	ID         string
	Name       string
	Trigger    RuleTrigger
	Conditions []RuleCondition
	Actions    []RuleAction
	Active     bool
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks trigger, every condition and every action. An empty
// condition list is valid and means the rule always fires for its trigger.
func (r *NotificationRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if !KnownTrigger(r.Trigger) {
		return fmt.Errorf("unknown trigger %q", r.Trigger)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule requires at least one action")
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}
