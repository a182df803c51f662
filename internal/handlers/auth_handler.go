package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/services"
)

type accountApplicationService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*services.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*services.AuthResult, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	AvatarLink(ctx context.Context, user *models.User) string
}

type AuthHandler struct {
	accounts accountApplicationService
}

func NewAuthHandler(accounts accountApplicationService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp takes a multipart form with name, email, password, confirm_password
// and an image file.
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	in := services.SignUpInput{
		Name:            c.FormValue("name"),
		Email:           c.FormValue("email"),
		Password:        c.FormValue("password"),
		ConfirmPassword: c.FormValue("confirm_password"),
	}

	if header, err := c.FormFile("image"); err == nil {
		file, err := header.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unable to read profile image"})
		}
		defer file.Close()
		in.Image = file
		in.ImageFilename = header.Filename
	}

	result, err := h.accounts.SignUp(c.Context(), in)
	if err != nil {
		return mapAccountError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(authResponse(result))
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.accounts.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
		}
		return mapAccountError(c, err)
	}

	return c.JSON(authResponse(result))
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := localUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	user, err := h.accounts.Me(c.Context(), userID)
	if err != nil {
		return mapAccountError(c, err)
	}

	response := fiber.Map{"user": user}
	if link := h.accounts.AvatarLink(c.Context(), user); link != "" {
		response["avatar_signed_url"] = link
	}
	return c.JSON(response)
}

func authResponse(result *services.AuthResult) fiber.Map {
	return fiber.Map{
		"token": result.Token,
		"user": fiber.Map{
			"id":    result.User.ID,
			"name":  result.User.Name,
			"email": result.User.Email,
			"image": result.User.Image,
		},
	}
}

func mapAccountError(c *fiber.Ctx, err error) error {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Message})
	case errors.Is(err, services.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already exists"})
	case errors.Is(err, services.ErrNotSignedIn):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not signed in"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Device is signed in as another user"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process account request"})
	}
}
