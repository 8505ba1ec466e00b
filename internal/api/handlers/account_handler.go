package handlers

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/service"
)

type AccountHandler struct {
	as  service.AccountService
	hs  service.HandshakeService
	cfg config.Config
}

func NewAccountHandler(as service.AccountService, hs service.HandshakeService, cfg config.Config) *AccountHandler {
	return &AccountHandler{
		as:  as,
		hs:  hs,
		cfg: cfg,
	}
}

// ConnectAccount starts the authorization handshake and redirects the
// browser to the platform's consent screen.
func (h *AccountHandler) ConnectAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)

	authURL, err := h.hs.BeginAuthorization(c.Context(), c.Params("platform"), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Redirect(authURL)
}

// CallbackHandler finishes the handshake. The state token carries its
// own integrity; the service rejects it if it is not bound to the
// session user.
func (h *AccountHandler) CallbackHandler(c *fiber.Ctx) error {
	userID := GetUserID(c)
	code := c.Query("code")
	state := c.Query("state")
	providerErr := c.Query("error")
	platform := c.Params("platform")

	_, err := h.hs.CompleteAuthorization(c.Context(), platform, code, state, providerErr, userID)
	if err != nil {
		return errorResponse(c, err)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.as.List(c.Context(), userID)
	if err != nil {
		log.Println(err.Error())
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *AccountHandler) DisconnectAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	err := h.as.Disconnect(c.Context(), userID, int64(accountID))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
