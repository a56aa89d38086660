package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/echoboardhq/echoboard/app/models"
)

const localsKey = "USER_CONTEXT"

// UserContext represents the authenticated principal for a request
type UserContext struct {
	UserID      uint   `json:"user_id"`
	WorkspaceID uint   `json:"workspace_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	IsLoggedIn  bool   `json:"is_logged_in"`
}

// Set stores the user context on the fiber context for downstream handlers.
func Set(c *fiber.Ctx, ctx UserContext) {
	c.Locals(localsKey, ctx)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(localsKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current request is authenticated
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetWorkspaceID returns the workspace the current user belongs to
func GetWorkspaceID(c *fiber.Ctx) uint {
	return GetUserContext(c).WorkspaceID
}

// CanManageIntegrations reports whether the role may connect, disconnect or
// reconfigure workspace integrations.
func CanManageIntegrations(c *fiber.Ctx) bool {
	role := GetUserContext(c).Role
	return role == models.ROLE_OWNER || role == models.ROLE_ADMIN
}
