package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func localUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	return userID, ok && userID != ""
}
