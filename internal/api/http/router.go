package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/lead-service/internal/api/http/handlers"
	"github.com/spec-kit/lead-service/internal/auth"
	"github.com/spec-kit/lead-service/internal/observability"
	"github.com/spec-kit/lead-service/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Leads          *handlers.LeadsHandler
	AuthMiddleware *auth.AuthMiddleware
	SubmitLimiter  *ratelimit.FixedWindow
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/leads", cfg.SubmitLimiter.Middleware(), cfg.Leads.CreateLead)
	app.Get("/leads", cfg.AuthMiddleware.Handle, cfg.Leads.ListLeads)
	app.Patch("/leads/:id/state", cfg.AuthMiddleware.Handle, cfg.Leads.UpdateLeadState)
}
