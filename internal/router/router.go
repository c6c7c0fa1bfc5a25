package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sabaq-dev/sabaq-api/internal/config"
	"github.com/sabaq-dev/sabaq-api/internal/handler"
	"github.com/sabaq-dev/sabaq-api/internal/middleware"
	"github.com/sabaq-dev/sabaq-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler     *handler.CourseHandler
	SectionHandler    *handler.SectionHandler
	ResourceHandler   *handler.ResourceHandler
	AssignmentHandler *handler.AssignmentHandler
	TestHandler       *handler.TestHandler
	AttemptHandler    *handler.AttemptHandler
	SyncHandler       *handler.SyncHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application. Content
// management and sync routes require a teacher or admin role; attempt
// routes are open to any authenticated user, with grading restricted
// to teachers.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	authed := api.Group("", jwtMiddleware)
	teacher := middleware.RequireRole("teacher", "admin")

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(authed.Group("/courses", teacher))
	}

	if deps.SectionHandler != nil {
		deps.SectionHandler.Register(authed.Group("/sections", teacher))
	}

	if deps.ResourceHandler != nil {
		deps.ResourceHandler.Register(authed.Group("/resources", teacher))
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(authed.Group("/assignments", teacher))
	}

	if deps.TestHandler != nil {
		deps.TestHandler.Register(authed.Group("/tests", teacher))
	}

	if deps.AttemptHandler != nil {
		deps.AttemptHandler.Register(authed)
		deps.AttemptHandler.RegisterGrading(authed.Group("", teacher))
	}

	if deps.SyncHandler != nil {
		deps.SyncHandler.Register(authed.Group("", teacher))
	}
}
