package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mythicmate/internal/api/http/handlers"
	"github.com/spec-kit/mythicmate/internal/auth"
	"github.com/spec-kit/mythicmate/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Groups         *handlers.GroupsHandler
	Stats          *handlers.StatsHandler
	Gateway        *handlers.GatewayHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Gateway != nil {
		app.Get("/gateway",
			cfg.Gateway.RequireUpgrade,
			cfg.AuthMiddleware.Handle,
			auth.RequireSubject(domain.SubjectAdapter),
			cfg.Gateway.Handle())
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnySubject())
	api.Get("/activities", cfg.Groups.ListActivities)

	groups := api.Group("/groups")
	groups.Post("/", cfg.Groups.CreateGroup)
	groups.Get("/", cfg.Groups.ListGroups)
	groups.Get("/:id", cfg.Groups.GetGroup)
	groups.Delete("/:id", auth.RequireSubject(domain.SubjectOperator), cfg.Groups.DeleteGroup)
	groups.Post("/:id/events", cfg.Groups.PostEvent)

	stats := api.Group("/stats/:server")
	stats.Get("/users/:user", cfg.Stats.UserStats)
	stats.Get("/leaderboard", cfg.Stats.Leaderboard)
	stats.Get("/export", auth.RequireSubject(domain.SubjectOperator), cfg.Stats.ExportRuns)
}
