package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/service"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// EventsHandler ingests lifecycle events from the ticket platform and lets
// operators force a detection sweep.
type EventsHandler struct {
	dispatcher events.Dispatcher
	detector   *service.DetectorService
}

// NewEventsHandler returns a new handler instance.
func NewEventsHandler(dispatcher events.Dispatcher, detector *service.DetectorService) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, detector: detector}
}

// Ingest handles POST /v1/events.
func (h *EventsHandler) Ingest(c *fiber.Ctx) error {
	var req dto.IngestEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if !events.KnownEventType(req.Type) {
		return apperrors.NewValidationError("unknown event type", map[string]any{"type": req.Type})
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticket_id is required", nil)
	}

	if err := h.dispatcher.Publish(c.UserContext(), req.ToEvent()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Sweep handles POST /v1/sweeps.
func (h *EventsHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.detector.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(result)
}
