package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/paheweb/backend/internal/config"
	"github.com/paheweb/backend/internal/core/services"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/db"
	"github.com/paheweb/backend/internal/infrastructure/fetch"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	transporthttp "github.com/paheweb/backend/internal/transport/http"
	"gorm.io/gorm"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	database, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Info("database connection established")

	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Info("database migrations completed")

	taskRepo := db.NewTaskRepository(database, log)
	settingRepo := db.NewQueueSettingRepository(database, log)

	settingsService, err := services.NewQueueSettingsService(settingRepo, log, domain.QueueSettings{
		MaxWorkers:        cfg.Queue.MaxWorkers,
		DownloadPath:      cfg.Queue.DownloadPath,
		DefaultResolution: cfg.Queue.DefaultResolution,
	})
	if err != nil {
		log.Fatalf("failed to initialize settings: %v", err)
	}

	broadcaster := services.NewProgressBroadcaster(services.BroadcasterConfig{
		Logger:            log,
		HeartbeatInterval: cfg.Queue.HeartbeatInterval,
	})

	queueService := services.NewQueueService(services.QueueServiceConfig{
		Repo:        taskRepo,
		Broadcaster: broadcaster,
		Settings:    settingsService,
		Logger:      log,
		RecentLimit: cfg.Queue.RecentLimit,
	})
	if err := queueService.Restore(context.Background()); err != nil {
		log.Fatalf("failed to restore task table: %v", err)
	}

	pool := services.NewWorkerPool(services.WorkerPoolConfig{
		Queue:            queueService,
		Settings:         settingsService,
		Fetcher:          fetch.NewSelector(log),
		Logger:           log,
		DispatchInterval: cfg.Queue.DispatchInterval,
	})

	runCtx, stopWorkers := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(runCtx)
	}()
	go broadcaster.Run(runCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Queue:       queueService,
		Settings:    settingsService,
		Broadcaster: broadcaster,
		Logger:      log,
	})

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s", cfg.Server.Address())

	gracefulShutdown(app, database, log, stopWorkers, poolDone)
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusNotFound || code == fiber.StatusRequestTimeout {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func gracefulShutdown(app *fiber.App, database *gorm.DB, log *logger.Logger, stopWorkers context.CancelFunc, poolDone <-chan struct{}) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	stopWorkers()
	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		log.Error("worker pool did not drain in time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if err := db.Close(database); err != nil {
		log.Errorf("failed to close database connection: %v", err)
	}

	log.Info("server exited gracefully")
}
