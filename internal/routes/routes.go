package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/internal/handlers/deployments"
	"github.com/hostara/hostara/api/internal/handlers/instances"
	webhookci "github.com/hostara/hostara/api/internal/handlers/webhooks/ci"
	"github.com/hostara/hostara/api/internal/middleware"
	"github.com/hostara/hostara/api/internal/pool"
	"github.com/hostara/hostara/api/internal/provision"
)

// Deps carries the shared service dependencies the route handlers are
// built from
type Deps struct {
	Registry *pool.Registry
	Provider provision.Deps
	Gateway  deploy.Gateway
}

func Setup(app *fiber.App, cfg *config.Config, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	instanceHandler := instances.NewHandler(deps.Registry, deps.Provider)
	deploymentHandler := deployments.NewHandler(deps.Gateway)

	// Webhooks (X-Api-Key; the CI handler additionally checks the
	// per-hook secret token)
	webhooks := api.Group("/webhooks", middleware.WebhookApiKeyMiddleware(cfg))
	{
		webhooks.Post("/ci", webhookci.Handler(cfg))
	}

	// Instances (JWT)
	instancesRoutes := api.Group("/instances", middleware.AuthMiddleware(cfg))
	{
		instancesRoutes.Post("/", instanceHandler.Create)
		instancesRoutes.Get("/:instanceId/status", instanceHandler.Status)
		instancesRoutes.Post("/:instanceId/deployments", instanceHandler.CreateDeployment)
		instancesRoutes.Post("/:instanceId/provision", instanceHandler.Provision)
		instancesRoutes.Post("/:instanceId/deprovision", instanceHandler.Deprovision)
	}

	// Deployments (JWT)
	deploymentsRoutes := api.Group("/deployments", middleware.AuthMiddleware(cfg))
	{
		deploymentsRoutes.Get("/:deploymentId", deploymentHandler.Get)
		deploymentsRoutes.Post("/:deploymentId/cancel", deploymentHandler.Cancel)
	}
}
