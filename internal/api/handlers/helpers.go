package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/crossposthq/crosspost/internal/apperrors"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// errorResponse maps the error taxonomy to HTTP statuses. Forbidden is
// reported as 404 so the API does not leak which ids exist.
func errorResponse(c *fiber.Ctx, err error) error {
	var validationErr *apperrors.ValidationError
	var stateErr *apperrors.StateMismatchError
	var cfgErr *apperrors.ConfigurationError
	var unsupportedErr *apperrors.UnsupportedPlatformError
	var exchangeErr *apperrors.TokenExchangeError
	var identityErr *apperrors.IdentityFetchError

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Msg})
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrForbidden):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.As(err, &stateErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unable to validate authorization state"})
	case errors.As(err, &cfgErr), errors.As(err, &unsupportedErr):
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &exchangeErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Token exchange with the platform failed"})
	case errors.As(err, &identityErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Could not fetch account identity from the platform"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong"})
	}
}
