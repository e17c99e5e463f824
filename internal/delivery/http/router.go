package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// AppName is reported by the health check and the fiber server header.
const AppName = "scribblemap"

// NewApp creates the fiber app with the JSON error handler installed.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               AppName,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          35 * time.Second,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	return app
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.HealthCheck)

	api := app.Group("/api/v1")
	{
		api.Get("/capture", h.GetCapture)
		api.Post("/capture/toggle", h.ToggleCapture)
		api.Post("/capture/strokes", h.PostStrokes)
		api.Post("/capture/resize", h.Resize)
		api.Get("/capture/frame", h.GetFrame)

		api.Get("/annotations", h.ListAnnotations)
		api.Get("/annotations/nearby", h.NearbyAnnotations)
		api.Post("/annotations/:id/submit", h.SubmitAnnotation)

		api.Post("/search", h.Search)
		api.Post("/search/reset", h.ResetSearch)
		api.Post("/search/all", h.ShowAll)

		api.Post("/session/reset", h.ResetSession)

		api.Get("/overlay", h.GetOverlay)
	}
}
