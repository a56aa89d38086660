package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/echoboardhq/echoboard/app/controllers"
	"github.com/echoboardhq/echoboard/internal/pkg/constants"
	"github.com/echoboardhq/echoboard/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group(constants.APIv1Route, limiter.New(), middleware.APIKeyAuthMiddleware())

	integrations := v1.Group("/integrations")
	integrations.Get("/", controllers.HandleListIntegrations)
	integrations.Delete("/:type", middleware.RequireIntegrationManager, controllers.HandleIntegrationDisconnect)
	integrations.Post("/:type/test", middleware.RequireIntegrationManager, controllers.HandleIntegrationTest)
	integrations.Post("/:type/pause", middleware.RequireIntegrationManager, controllers.HandleIntegrationPause)
	integrations.Post("/:type/resume", middleware.RequireIntegrationManager, controllers.HandleIntegrationResume)
	integrations.Get("/:type/mappings", controllers.HandleGetMappings)
	integrations.Put("/:type/mappings", middleware.RequireIntegrationManager, controllers.HandlePutMappings)

	v1.Post("/events", controllers.HandleRaiseEvent)

	v1.Get("/posts/:id/cascade", controllers.HandleCascadeLinks)
	v1.Post("/posts/:id/cascade", controllers.HandleCascadeExecute)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
