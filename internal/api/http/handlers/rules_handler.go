package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/auth"
	"github.com/ticketops/sla-engine/internal/service"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// RulesHandler exposes notification rule administration.
type RulesHandler struct {
	rules *service.RuleService
}

// NewRulesHandler returns a new handler instance.
func NewRulesHandler(rules *service.RuleService) *RulesHandler {
	return &RulesHandler{rules: rules}
}

// Create handles POST /v1/rules.
func (h *RulesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	rule, err := h.rules.Create(c.UserContext(), principal.SubjectID, service.RuleInput{
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		Active:     req.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewRuleResponse(rule))
}

// Update handles PUT /v1/rules/:id.
func (h *RulesHandler) Update(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	rule, err := h.rules.Update(c.UserContext(), c.Params("id"), service.RuleInput{
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		Active:     req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewRuleResponse(rule))
}

// Delete handles DELETE /v1/rules/:id.
func (h *RulesHandler) Delete(c *fiber.Ctx) error {
	if err := h.rules.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Get handles GET /v1/rules/:id.
func (h *RulesHandler) Get(c *fiber.Ctx) error {
	rule, err := h.rules.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewRuleResponse(rule))
}

// List handles GET /v1/rules.
func (h *RulesHandler) List(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rules": dto.NewRuleListResponse(rules)})
}
