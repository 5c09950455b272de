package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/core/services"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	"github.com/paheweb/backend/internal/transport/http/dto"
)

type SettingsHandler struct {
	settings ports.SettingsService
	logger   *logger.Logger
}

func NewSettingsHandler(settings ports.SettingsService, logger *logger.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.settings.Current())
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	updated, err := h.settings.Update(c.Context(), ports.UpdateSettingsInput{
		MaxWorkers:        req.MaxWorkers,
		DownloadPath:      req.DownloadPath,
		DefaultResolution: req.DefaultResolution,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidMaxWorkers) || errors.Is(err, services.ErrInvalidDownloadPath) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("settings_update_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(updated)
}
