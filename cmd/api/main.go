package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hostara/hostara/api/internal/ci"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/crypto"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/pool"
	"github.com/hostara/hostara/api/internal/provision"
	redisx "github.com/hostara/hostara/api/internal/redis"
	"github.com/hostara/hostara/api/internal/routes"
	"github.com/hostara/hostara/api/internal/scheduler"
)

func main() {
	cfg := config.Load()

	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := crypto.Initialize(); err != nil {
		log.Fatalf("Failed to initialize encryption: %v", err)
	}

	poolDefaults, err := cfg.Pools()
	if err != nil {
		log.Fatalf("Failed to load server pool defaults: %v", err)
	}
	registry := pool.NewRegistry(database.GetDatabase(), poolDefaults)

	cacheClients := redisx.NewClientRegistry()
	defer cacheClients.Close()

	// Cloud backends are optional; an instance set only uses the ones
	// whose credentials are configured.
	s3Client, iamClient, err := provision.NewAWSClients(context.Background(), cfg)
	if err != nil {
		log.Printf("Object storage disabled: %v", err)
	}
	blobClient, err := provision.NewBlobClient(cfg)
	if err != nil {
		log.Printf("Blob storage disabled: %v", err)
	}

	deps := routes.Deps{
		Registry: registry,
		Provider: provision.Deps{
			DB:    database.GetDatabase(),
			Cfg:   cfg,
			Cache: cacheClients,
			S3:    s3Client,
			IAM:   iamClient,
			Blob:  blobClient,
		},
		Gateway: ci.NewClient(),
	}

	// Single worker per process; running multiple schedulers requires
	// external coordination.
	sched := scheduler.New(deps.Gateway, cfg.SchedulerInterval)
	sched.Start()
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CorsOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	routes.Setup(app, cfg, deps)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"message": err.Error(),
	})
}
