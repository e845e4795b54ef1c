package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/notify"
)

// NotificationPipeline ties rule evaluation to dispatch: every domain event
// runs through the evaluator and the resulting instructions are dispatched
// concurrently, independent of each other.
type NotificationPipeline struct {
	rules      *RuleService
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// NewNotificationPipeline constructs the pipeline.
func NewNotificationPipeline(rules *RuleService, dispatcher *notify.Dispatcher, logger *zap.Logger) *NotificationPipeline {
	return &NotificationPipeline{rules: rules, dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes the pipeline to every trigger the rule model
// knows.
func (p *NotificationPipeline) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventInquiryCreated,
		events.EventStatusChanged,
		events.EventResponseAdded,
		events.EventSlaViolation,
		events.EventEscalation,
	} {
		dispatcher.Subscribe(eventType, p.handle)
	}
}

func (p *NotificationPipeline) handle(ctx context.Context, event events.Event) error {
	instructions, err := p.rules.Evaluate(ctx, event)
	if err != nil {
		return err
	}
	if len(instructions) == 0 {
		return nil
	}
	p.logger.Debug("dispatching notifications",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int("instructions", len(instructions)))
	p.dispatcher.DispatchAll(ctx, instructions)
	return nil
}
