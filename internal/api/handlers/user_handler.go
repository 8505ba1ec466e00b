package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/crossposthq/crosspost/internal/service"
)

type UserHandler struct {
	s service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{s: service}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userID := GetUserID(c)

	user, err := h.s.GetUserInfo(c.Context(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	userID := GetUserID(c)

	if err := h.s.RemoveUser(c.Context(), userID); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
