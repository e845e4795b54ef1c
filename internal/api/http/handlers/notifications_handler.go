package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/dto"
	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/repository"
)

// NotificationsHandler exposes the delivery audit log.
type NotificationsHandler struct {
	logs repository.NotificationLogRepository
}

// NewNotificationsHandler returns a new handler instance.
func NewNotificationsHandler(logs repository.NotificationLogRepository) *NotificationsHandler {
	return &NotificationsHandler{logs: logs}
}

// List handles GET /v1/notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	filter := repository.NotificationLogFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if ticketID := c.Query("ticket_id"); ticketID != "" {
		filter.TicketID = &ticketID
	}
	if ruleID := c.Query("rule_id"); ruleID != "" {
		filter.RuleID = &ruleID
	}
	if channel := c.Query("channel"); channel != "" {
		ch := domain.NotificationChannel(channel)
		filter.Channel = &ch
	}
	if status := c.Query("status"); status != "" {
		st := domain.NotificationStatus(status)
		filter.Status = &st
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

	logs, err := h.logs.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"notifications": dto.NewNotificationLogListResponse(logs)})
}
