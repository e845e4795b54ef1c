package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/auth"
	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/repository"
	"github.com/ticketops/sla-engine/internal/service"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// ViolationsHandler exposes the violation ledger.
type ViolationsHandler struct {
	detector *service.DetectorService
}

// NewViolationsHandler returns a new handler instance.
func NewViolationsHandler(detector *service.DetectorService) *ViolationsHandler {
	return &ViolationsHandler{detector: detector}
}

// List handles GET /v1/violations.
func (h *ViolationsHandler) List(c *fiber.Ctx) error {
	filter := repository.ViolationFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if ticketID := c.Query("ticket_id"); ticketID != "" {
		filter.TicketID = &ticketID
	}
	if kind := c.Query("kind"); kind != "" {
		k := domain.ViolationKind(kind)
		filter.Kind = &k
	}
	if severity := c.Query("severity"); severity != "" {
		s := domain.ViolationSeverity(severity)
		filter.Severity = &s
	}
	if resolved := c.Query("resolved"); resolved != "" {
		r := resolved == "true"
		filter.Resolved = &r
	}
	if from, err := queryTime(c, "from"); err != nil {
		return err
	} else if from != nil {
		filter.From = from
	}
	if to, err := queryTime(c, "to"); err != nil {
		return err
	} else if to != nil {
		filter.To = to
	}

	violations, err := h.detector.ListViolations(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"violations": dto.NewViolationListResponse(violations)})
}

// Resolve handles POST /v1/violations/:id/resolution.
func (h *ViolationsHandler) Resolve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ResolveViolationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	violation, err := h.detector.ResolveViolation(c.UserContext(), c.Params("id"), principal.SubjectID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewViolationResponse(violation))
}

func queryTime(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+name+" timestamp, expected RFC3339", nil)
	}
	return &parsed, nil
}
