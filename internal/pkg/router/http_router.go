package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/echoboardhq/echoboard/app/controllers"
	"github.com/echoboardhq/echoboard/internal/pkg/constants"
	"github.com/echoboardhq/echoboard/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "echoboard", "status": "ok"})
	})

	// The connect redirect is browser-initiated but still authenticated:
	// the API key may arrive as a query parameter here.
	app.Get(constants.OAuthConnectRoute,
		middleware.APIKeyAuthMiddleware(),
		middleware.RequireIntegrationManager,
		controllers.HandleIntegrationConnect,
	)

	// The provider redirects back here; the signed state token is the only
	// authentication this route needs.
	app.Get(constants.OAuthCallbackRoute, controllers.HandleIntegrationCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
