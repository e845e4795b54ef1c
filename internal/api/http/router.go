package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketops/sla-engine/internal/api/http/handlers"
	"github.com/ticketops/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Events         *handlers.EventsHandler
	Policies       *handlers.PoliciesHandler
	Rules          *handlers.RulesHandler
	Violations     *handlers.ViolationsHandler
	Escalations    *handlers.EscalationsHandler
	Notifications  *handlers.NotificationsHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Machine callers authenticate with the
// service API key; operators with a bearer token. Writes need the admin role.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	apiKey := cfg.AuthMiddleware.HandleAPIKey
	bearer := cfg.AuthMiddleware.Handle
	operator := auth.RequireRole(auth.RoleAdmin, auth.RoleOperator)
	admin := auth.RequireRole(auth.RoleAdmin)

	v1 := app.Group("/v1")

	v1.Post("/events", apiKey, cfg.Events.Ingest)
	v1.Post("/sweeps", apiKey, cfg.Events.Sweep)

	v1.Get("/policies", bearer, operator, cfg.Policies.List)
	v1.Get("/policies/resolve", bearer, operator, cfg.Policies.Resolve)
	v1.Get("/policies/:id", bearer, operator, cfg.Policies.Get)
	v1.Post("/policies", bearer, admin, cfg.Policies.Create)
	v1.Patch("/policies/:id", bearer, admin, cfg.Policies.Update)

	v1.Get("/rules", bearer, operator, cfg.Rules.List)
	v1.Get("/rules/:id", bearer, operator, cfg.Rules.Get)
	v1.Post("/rules", bearer, admin, cfg.Rules.Create)
	v1.Put("/rules/:id", bearer, admin, cfg.Rules.Update)
	v1.Delete("/rules/:id", bearer, admin, cfg.Rules.Delete)

	v1.Get("/violations", bearer, operator, cfg.Violations.List)
	v1.Post("/violations/:id/resolution", bearer, operator, cfg.Violations.Resolve)

	v1.Get("/tickets/:id/escalations", bearer, operator, cfg.Escalations.History)
	v1.Post("/tickets/:id/escalations", bearer, operator, cfg.Escalations.Escalate)

	v1.Get("/notifications", bearer, operator, cfg.Notifications.List)
	v1.Get("/reports/compliance", bearer, operator, cfg.Reports.Compliance)
}
