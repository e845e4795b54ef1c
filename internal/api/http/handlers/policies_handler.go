package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/auth"
	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/repository"
	"github.com/ticketops/sla-engine/internal/service"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// PoliciesHandler exposes SLA policy administration.
type PoliciesHandler struct {
	policies *service.PolicyService
}

// NewPoliciesHandler returns a new handler instance.
func NewPoliciesHandler(policies *service.PolicyService) *PoliciesHandler {
	return &PoliciesHandler{policies: policies}
}

// Create handles POST /v1/policies.
func (h *PoliciesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	policy, err := h.policies.Create(c.UserContext(), principal.SubjectID, service.PolicyCreateInput{
		ApplicationID:         req.ApplicationID,
		Priority:              req.Priority,
		ResponseTargetHours:   req.ResponseTargetHours,
		ResolutionTargetHours: req.ResolutionTargetHours,
		EscalationTargetHours: req.EscalationTargetHours,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewPolicyResponse(policy))
}

// Update handles PATCH /v1/policies/:id.
func (h *PoliciesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	policy, err := h.policies.Update(c.UserContext(), c.Params("id"), service.PolicyUpdateInput{
		ResponseTargetHours:   req.ResponseTargetHours,
		ResolutionTargetHours: req.ResolutionTargetHours,
		EscalationTargetHours: req.EscalationTargetHours,
		Active:                req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewPolicyResponse(policy))
}

// Get handles GET /v1/policies/:id.
func (h *PoliciesHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewPolicyResponse(policy))
}

// List handles GET /v1/policies.
func (h *PoliciesHandler) List(c *fiber.Ctx) error {
	filter := repository.PolicyFilter{
		ActiveOnly: c.QueryBool("active_only"),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	if app := c.Query("application_id"); app != "" {
		filter.ApplicationID = &app
	}
	if pr := c.Query("priority"); pr != "" {
		priority := domain.TicketPriority(pr)
		filter.Priority = &priority
	}

	policies, err := h.policies.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"policies": dto.NewPolicyListResponse(policies)})
}

// Resolve handles GET /v1/policies/resolve.
func (h *PoliciesHandler) Resolve(c *fiber.Ctx) error {
	app := c.Query("application_id")
	priority := domain.TicketPriority(c.Query("priority"))
	if app == "" || priority == "" {
		return apperrors.NewValidationError("application_id and priority are required", nil)
	}

	policy, err := h.policies.Resolve(c.UserContext(), app, priority)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewPolicyResponse(policy))
}
