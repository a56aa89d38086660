package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/echoboardhq/echoboard/app/controllers"
	"github.com/echoboardhq/echoboard/app/repository"
	"github.com/echoboardhq/echoboard/internal/pkg/cache"
	"github.com/echoboardhq/echoboard/internal/pkg/cascade"
	"github.com/echoboardhq/echoboard/internal/pkg/connections"
	"github.com/echoboardhq/echoboard/internal/pkg/database"
	"github.com/echoboardhq/echoboard/internal/pkg/dispatch"
	"github.com/echoboardhq/echoboard/internal/pkg/env"
	"github.com/echoboardhq/echoboard/internal/pkg/hooks"
	"github.com/echoboardhq/echoboard/internal/pkg/oauthapp"
	"github.com/echoboardhq/echoboard/internal/pkg/router"
	"github.com/echoboardhq/echoboard/internal/pkg/secretbox"
	"github.com/echoboardhq/echoboard/internal/pkg/statetoken"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitGlobalFactory(db)
	repos := repository.GetGlobalFactory()

	box, err := secretbox.New(env.GetEnv("APP_ROOT_SECRET", ""))
	if err != nil {
		log.Fatalf("secretbox init failed: %v", err)
	}

	apps := oauthapp.NewRegistry(box, env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"))
	signer, err := statetoken.NewSigner(box, statetoken.DefaultWindow, cache.GetClient())
	if err != nil {
		log.Fatalf("state signer init failed: %v", err)
	}

	registry := hooks.DefaultRegistry()
	store := connections.NewStore(
		repos.GetConnectionRepository(),
		repos.GetMappingRepository(),
		repos.GetUserRepository(),
		box,
		apps,
	)
	dispatcher := dispatch.NewDispatcher(
		repos.GetConnectionRepository(),
		repos.GetMappingRepository(),
		repos.GetLinkedRecordRepository(),
		store,
		registry,
	)
	orchestrator := cascade.NewOrchestrator(
		repos.GetConnectionRepository(),
		repos.GetLinkedRecordRepository(),
		store,
		registry,
	)

	controllers.InitializeIntegrationController(store, apps, signer, registry)
	controllers.InitializeEventController(dispatcher, orchestrator)

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, payloads here are small JSON bodies
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
