package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/auth"
	"github.com/ticketops/sla-engine/internal/service"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// EscalationsHandler exposes the per-ticket escalation chain.
type EscalationsHandler struct {
	escalations *service.EscalationService
}

// NewEscalationsHandler returns a new handler instance.
func NewEscalationsHandler(escalations *service.EscalationService) *EscalationsHandler {
	return &EscalationsHandler{escalations: escalations}
}

// Escalate handles POST /v1/tickets/:id/escalations.
func (h *EscalationsHandler) Escalate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	escalation, err := h.escalations.Escalate(c.UserContext(), service.EscalateInput{
		TicketID:   c.Params("id"),
		ToAssignee: req.ToAssignee,
		Reason:     req.Reason,
		ActorID:    &principal.SubjectID,
		Comment:    req.Comment,
		Automatic:  false,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewEscalationResponse(escalation))
}

// History handles GET /v1/tickets/:id/escalations.
func (h *EscalationsHandler) History(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	records, err := h.escalations.History(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	level, err := h.escalations.CurrentLevel(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	holder, err := h.escalations.LatestAssignee(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"current_level":    level,
		"current_assignee": holder,
		"escalations":      dto.NewEscalationListResponse(records),
	})
}
