package instances

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/pkg/response"
)

// Status returns the instance's effective status projected from its latest
// pipeline state
func (h *Handler) Status(c *fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return response.BadRequest(c, "Instance ID is required")
	}

	instance, err := loadInstance(instanceID)
	if err != nil {
		return response.NotFound(c, "Instance not found")
	}

	status, err := deploy.EffectiveStatus(instance.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve instance status")
	}

	return response.Success(c, fiber.Map{
		"id":                      instance.ID,
		"name":                    instance.Name,
		"status":                  status,
		"successfullyProvisioned": instance.SuccessfullyProvisioned,
		"backends": fiber.Map{
			"sql":     instance.SQLProvisioned,
			"mongo":   instance.MongoProvisioned,
			"cache":   instance.CacheProvisioned,
			"storage": instance.StorageProvisioned,
			"blob":    instance.BlobProvisioned,
		},
	})
}
