package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	"github.com/paheweb/backend/internal/transport/http/handlers"
)

type RouterConfig struct {
	Queue       ports.QueueService
	Settings    ports.SettingsService
	Broadcaster ports.Broadcaster
	Logger      *logger.Logger
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	queueHandler := handlers.NewQueueHandler(cfg.Queue, cfg.Settings, cfg.Logger)
	settingsHandler := handlers.NewSettingsHandler(cfg.Settings, cfg.Logger)
	progressHandler := handlers.NewProgressHandler(cfg.Queue, cfg.Broadcaster, cfg.Logger)

	// Live event stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/progress", websocket.New(progressHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	api.Post("/download", queueHandler.Download)
	api.Post("/download/batch", queueHandler.BatchDownload)

	queue := api.Group("/queue")
	queue.Get("/", queueHandler.GetQueue)
	queue.Post("/retry", queueHandler.RetryFailed)
	queue.Post("/clear", queueHandler.ClearCompleted)
	queue.Delete("/:id", queueHandler.Cancel)

	settings := api.Group("/settings")
	settings.Get("/", settingsHandler.GetSettings)
	settings.Put("/", settingsHandler.UpdateSettings)
}
