package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/core/services"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	"github.com/paheweb/backend/internal/transport/http/dto"
)

type QueueHandler struct {
	queue    ports.QueueService
	settings ports.SettingsService
	logger   *logger.Logger
}

func NewQueueHandler(queue ports.QueueService, settings ports.SettingsService, logger *logger.Logger) *QueueHandler {
	return &QueueHandler{queue: queue, settings: settings, logger: logger}
}

// resolveResolution falls back to the configured default when the request
// leaves the resolution out.
func (h *QueueHandler) resolveResolution(requested *int) int {
	if requested != nil {
		return *requested
	}
	return h.settings.Current().DefaultResolution
}

func (h *QueueHandler) Download(c *fiber.Ctx) error {
	var req dto.DownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if details := req.Validate(); len(details) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "validation failed", Details: details})
	}

	task, err := h.queue.Add(ports.AddTaskInput{
		AnimeSession: req.AnimeSession,
		AnimeTitle:   req.AnimeTitle,
		Episode:      req.Episode,
		Resolution:   h.resolveResolution(req.Resolution),
		Filename:     req.Filename,
		URL:          req.URL,
	})
	if err != nil {
		return h.mapQueueError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{
		Status:     "queued",
		AddedCount: 1,
		Task:       task,
	})
}

func (h *QueueHandler) BatchDownload(c *fiber.Ctx) error {
	var req dto.BatchDownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if details := req.Validate(); len(details) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "validation failed", Details: details})
	}

	added, err := h.queue.BatchAdd(ports.BatchAddInput{
		AnimeSession: req.AnimeSession,
		AnimeTitle:   req.AnimeTitle,
		StartEpisode: req.StartEpisode,
		EndEpisode:   req.EndEpisode,
		Resolution:   h.resolveResolution(req.Resolution),
	})
	if err != nil {
		return h.mapQueueError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{
		Status:     "queued",
		AddedCount: added,
	})
}

func (h *QueueHandler) GetQueue(c *fiber.Ctx) error {
	return c.JSON(h.queue.Status())
}

func (h *QueueHandler) RetryFailed(c *fiber.Ctx) error {
	count := h.queue.RetryFailed()
	return c.JSON(dto.RetryResponse{RetriedCount: count})
}

func (h *QueueHandler) ClearCompleted(c *fiber.Ctx) error {
	count := h.queue.ClearCompleted()
	return c.JSON(dto.ClearResponse{ClearedCount: count})
}

func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	taskID := c.Params("id")
	found := h.queue.Cancel(taskID)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "task not found"})
	}
	return c.JSON(dto.CancelResponse{Success: true})
}

func (h *QueueHandler) mapQueueError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrTaskInvalidInput) || errors.Is(err, services.ErrInvalidResolution) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.logger.Errorw("queue_request_failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
}
