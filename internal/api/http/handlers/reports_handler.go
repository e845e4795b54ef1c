package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/service"
)

// ReportsHandler exposes aggregate compliance reporting.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler returns a new handler instance.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Compliance handles GET /v1/reports/compliance.
func (h *ReportsHandler) Compliance(c *fiber.Ctx) error {
	var from, to time.Time
	if parsed, err := queryTime(c, "from"); err != nil {
		return err
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := queryTime(c, "to"); err != nil {
		return err
	} else if parsed != nil {
		to = *parsed
	}

	report, err := h.reports.Compliance(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(report)
}
