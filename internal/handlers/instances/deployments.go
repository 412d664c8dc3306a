package instances

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/pkg/response"
)

type createDeploymentRequest struct {
	Type      models.DeploymentType `json:"type"`
	Overrides map[string]string     `json:"overrides"`
}

// CreateDeployment records a Pending deployment for the scheduler to pick up
func (h *Handler) CreateDeployment(c *fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return response.BadRequest(c, "Instance ID is required")
	}

	var req createDeploymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	deploymentType := req.Type
	switch deploymentType {
	case "":
		deploymentType = models.DeploymentTypeUpdateInstance
	case models.DeploymentTypeNewInstance, models.DeploymentTypeUpdateInstance:
	default:
		return response.BadRequest(c, "Invalid deployment type")
	}

	var overrides models.JSON
	if len(req.Overrides) > 0 {
		overrides = models.MustJSON(req.Overrides)
	}

	var triggeredBy *string
	if subject, ok := c.Locals("subject").(string); ok && subject != "" {
		triggeredBy = &subject
	}

	deployment, err := deploy.CreateDeployment(instanceID, deploymentType, overrides, triggeredBy)
	if err != nil {
		return response.NotFound(c, "Instance not found")
	}

	return response.Success(c, fiber.Map{
		"id":         deployment.ID,
		"instanceId": deployment.InstanceID,
		"type":       deployment.Type,
		"status":     deployment.Status,
		"createdAt":  deployment.CreatedAt,
	})
}
