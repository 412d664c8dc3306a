package ci

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/ci"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/pkg/response"
)

// Handler ingests pipeline events from the external CI system. The watched
// project carries unrelated pipelines too, so events whose merge-commit
// title does not match the deployment naming convention are acknowledged
// and dropped.
func Handler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.CIWebhookSecret != "" && c.Get("X-Gitlab-Token") != cfg.CIWebhookSecret {
			return response.Unauthorized(c, "Invalid webhook token")
		}

		var payload ci.WebhookPayload
		if err := c.BodyParser(&payload); err != nil {
			// Acknowledge malformed bodies too, otherwise the CI system
			// keeps redelivering an event we can never parse.
			log.Printf("Ignoring malformed CI webhook payload: %v", err)
			return response.Success(c, fiber.Map{"handled": false})
		}

		tenant, deploymentID, ok := ci.ParseDeploymentRef(payload.Commit.Title)
		if !ok {
			return response.Success(c, fiber.Map{"handled": false})
		}

		db := database.GetDatabase()
		var deployment models.Deployment
		if err := db.Preload("Instance").Where("id = ?", deploymentID).
			First(&deployment).Error; err != nil {
			log.Printf("Webhook for unknown deployment %s (tenant %s)", deploymentID, tenant)
			return response.Success(c, fiber.Map{"handled": false})
		}
		if deployment.Instance.Name != tenant {
			log.Printf("Webhook tenant %s does not match deployment %s instance %s",
				tenant, deploymentID, deployment.Instance.Name)
			return response.Success(c, fiber.Map{"handled": false})
		}

		if err := deploy.UpdateStatus(deploymentID, payload.ObjectAttributes.ID, payload.ObjectAttributes.Status); err != nil {
			// Still acknowledge: the CI system retries on non-2xx and the
			// update is idempotent on redelivery anyway.
			log.Printf("Failed to apply webhook for deployment %s: %v", deploymentID, err)
			return response.Success(c, fiber.Map{"handled": false})
		}

		return response.Success(c, fiber.Map{"handled": true})
	}
}
