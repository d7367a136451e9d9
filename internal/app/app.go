package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"savecsv/internal/export"
	"savecsv/internal/handlers"
	"savecsv/internal/journal"
	"savecsv/internal/metrics"
	"savecsv/internal/storage"
	u "savecsv/internal/utils"
)

// Deps are the collaborators built by main. Store may be nil when storage
// credentials are missing; Journal and Metrics may be nil.
type Deps struct {
	Store   storage.ObjectStore
	Journal journal.Journal
	Metrics *metrics.Metrics
}

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler,
	})

	RegisterMiddleware(app, cfg, deps.Metrics)
	RegisterRoutes(app, cfg, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, deps Deps) {
	exporter := export.New(cfg, deps.Store,
		export.WithJournal(deps.Journal),
		export.WithMetrics(deps.Metrics),
	)
	svc := handlers.NewExportService(cfg, exporter)

	api := app.Group("/api")
	api.All("/save-csv", svc.HandleSaveCSV)
	api.Get("/exports/:member_code", svc.HandleListExports)

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}
	if cfg.Server.EnableMonitor {
		app.Get("/v1/monitor", monitor.New())
	}
}
