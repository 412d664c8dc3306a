package deployments

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/pkg/response"
)

// Get returns a single deployment with its pipeline state
func (h *Handler) Get(c *fiber.Ctx) error {
	db := database.GetDatabase()
	deploymentID := c.Params("deploymentId")

	if deploymentID == "" {
		return response.BadRequest(c, "Deployment ID is required")
	}

	var deployment models.Deployment
	if err := db.Preload("Instance").Preload("Pipeline").
		Where("id = ?", deploymentID).
		First(&deployment).Error; err != nil {
		return response.NotFound(c, "Deployment not found")
	}

	var pipeline *fiber.Map
	if deployment.Pipeline != nil {
		pipeline = &fiber.Map{
			"id":     deployment.Pipeline.ID,
			"runId":  deployment.Pipeline.RunID,
			"status": deployment.Pipeline.Status,
		}
	}

	return response.Success(c, fiber.Map{
		"id":          deployment.ID,
		"instanceId":  deployment.InstanceID,
		"type":        deployment.Type,
		"status":      deployment.Status,
		"triggeredBy": deployment.TriggeredBy,
		"createdAt":   deployment.CreatedAt,
		"updatedAt":   deployment.UpdatedAt,
		"completedAt": deployment.CompletedAt,
		"instance": fiber.Map{
			"id":   deployment.Instance.ID,
			"name": deployment.Instance.Name,
		},
		"pipeline": pipeline,
	})
}
