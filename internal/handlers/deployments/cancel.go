package deployments

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/pkg/response"
)

// Cancel aborts a deployment's pipeline and marks the deployment Cancelled
func (h *Handler) Cancel(c *fiber.Ctx) error {
	db := database.GetDatabase()
	deploymentID := c.Params("deploymentId")

	if deploymentID == "" {
		return response.BadRequest(c, "Deployment ID is required")
	}

	var deployment models.Deployment
	if err := db.Where("id = ?", deploymentID).First(&deployment).Error; err != nil {
		return response.NotFound(c, "Deployment not found")
	}

	if deployment.Status.IsTerminal() {
		return response.BadRequest(c, fmt.Sprintf("Deployment already %s, cannot cancel", deployment.Status))
	}

	if err := deploy.CancelDeployment(c.Context(), h.Gateway, deploymentID); err != nil {
		if errors.Is(err, deploy.ErrNoPipeline) {
			return response.BadRequest(c, "Deployment has not been triggered yet")
		}
		return response.InternalServerError(c, "Failed to cancel deployment")
	}

	return response.SuccessWithMessage(c, "Deployment cancelled successfully", fiber.Map{
		"id":     deploymentID,
		"status": models.DeploymentStatusCancelled,
	})
}
