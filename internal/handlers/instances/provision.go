package instances

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/provision"
	"github.com/hostara/hostara/api/pkg/response"
)

// Provision kicks off backend provisioning for an instance. The work runs on
// a background goroutine; the request thread only validates and acknowledges.
func (h *Handler) Provision(c *fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return response.BadRequest(c, "Instance ID is required")
	}

	instance, err := loadInstance(instanceID)
	if err != nil {
		return response.NotFound(c, "Instance not found")
	}

	set, err := provision.ForInstance(h.Deps, instance)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	go func() {
		if err := provision.ProvisionAll(context.Background(), set); err != nil {
			log.Printf("Provisioning failed for instance %s: %v", instance.ID, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(response.Response{
		Status:  "success",
		Message: "Provisioning started",
		Data:    fiber.Map{"id": instance.ID},
	})
}

// Deprovision tears down an instance's backend resources on a background
// goroutine. With force=true individual failures are logged and skipped.
func (h *Handler) Deprovision(c *fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	if instanceID == "" {
		return response.BadRequest(c, "Instance ID is required")
	}
	ignoreErrors := c.QueryBool("force", false)

	instance, err := loadInstance(instanceID)
	if err != nil {
		return response.NotFound(c, "Instance not found")
	}

	set, err := provision.ForInstance(h.Deps, instance)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	go func() {
		if err := provision.DeprovisionAll(context.Background(), set, ignoreErrors); err != nil {
			log.Printf("Deprovisioning failed for instance %s: %v", instance.ID, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(response.Response{
		Status:  "success",
		Message: "Deprovisioning started",
		Data:    fiber.Map{"id": instance.ID},
	})
}
