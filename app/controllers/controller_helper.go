package controllers

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func validateStruct(v any) error {
	return validate.Struct(v)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}

// settingsRedirectURL builds the post-handshake redirect back into the
// workspace UI, tolerating return domains with or without a trailing slash.
func settingsRedirectURL(returnDomain, query string) string {
	return strings.TrimRight(returnDomain, "/") + "/settings/integrations?" + query
}
