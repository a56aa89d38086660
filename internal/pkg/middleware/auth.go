package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/echoboardhq/echoboard/internal/pkg/usercontext"
)

// RequireAuth ensures an authenticated principal and returns JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	return c.Next()
}

// RequireIntegrationManager ensures the principal may manage workspace
// integrations (owner or admin role).
func RequireIntegrationManager(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	if !usercontext.CanManageIntegrations(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "owner or admin role required to manage integrations",
		})
	}
	return c.Next()
}
