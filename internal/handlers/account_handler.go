package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SigmaChatSync/internal/services"
)

type profileDetailsReader interface {
	Details() (*services.ProfileDetails, error)
}

type signOutService interface {
	SignOut(ctx context.Context, userID string) error
}

type AccountHandler struct {
	details   profileDetailsReader
	registrar signOutService
}

func NewAccountHandler(details profileDetailsReader, registrar signOutService) *AccountHandler {
	return &AccountHandler{details: details, registrar: registrar}
}

// Details returns the profile stored on this device. A problem with the
// profile image comes back as a warning next to the name.
func (h *AccountHandler) Details(c *fiber.Ctx) error {
	userID, ok := localUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	details, err := h.details.Details()
	if err != nil {
		return mapAccountError(c, err)
	}
	if details.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Device is signed in as another user"})
	}

	return c.JSON(fiber.Map{"details": details})
}

// SignOut only acts for the user this device is signed in as. Any other
// failure is the remote token delete and comes back as 502.
func (h *AccountHandler) SignOut(c *fiber.Ctx) error {
	userID, ok := localUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.registrar.SignOut(c.Context(), userID); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound),
			errors.Is(err, services.ErrForbidden),
			errors.Is(err, services.ErrNotSignedIn):
			return mapAccountError(c, err)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": services.WarnSignOutFailed})
	}

	return c.JSON(fiber.Map{"signed_out": true})
}
