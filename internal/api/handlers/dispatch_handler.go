package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/service"
)

type DispatchHandler struct {
	d   service.DispatcherService
	cfg config.Config
}

func NewDispatchHandler(dispatcher service.DispatcherService, cfg config.Config) *DispatchHandler {
	return &DispatchHandler{d: dispatcher, cfg: cfg}
}

// Dispatch runs one sweep over due posts. Callers authenticate with the
// shared dispatch secret rather than a session cookie so that external
// schedulers can trigger it.
func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	secret := c.Get("X-Dispatch-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.DispatchSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	report, err := h.d.Sweep(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}
