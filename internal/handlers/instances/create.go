package instances

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/pool"
	"github.com/hostara/hostara/api/internal/provision"
	"github.com/hostara/hostara/api/internal/utils"
	"github.com/hostara/hostara/api/pkg/response"
)

type createInstanceRequest struct {
	Name         string            `json:"name"`
	Hostnames    []string          `json:"hostnames"`
	AppDatabases []string          `json:"appDatabases"`
	Theme        map[string]string `json:"theme"`
	CIProject    *ciProjectRequest `json:"ciProject"`
}

type ciProjectRequest struct {
	Name         string `json:"name"`
	ProjectID    int    `json:"projectId"`
	BaseURL      string `json:"baseUrl"`
	Ref          string `json:"ref"`
	TriggerToken string `json:"triggerToken"`
}

// Create registers a new instance and allocates its shared backend servers
// from the pools. Backend resources themselves are not created here; that is
// the provision endpoint's job.
func (h *Handler) Create(c *fiber.Ctx) error {
	ctx := c.Context()
	db := database.GetDatabase()

	var req createInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Name == "" {
		return response.BadRequest(c, "Instance name is required")
	}

	appDatabases := req.AppDatabases
	if len(appDatabases) == 0 {
		appDatabases = h.Deps.Cfg.AppDatabases
	}
	if _, err := provision.NewNames(req.Name, appDatabases); err != nil {
		return response.BadRequest(c, err.Error())
	}

	var existing models.Instance
	if err := db.Where("name = ? AND deletedAt IS NULL", req.Name).First(&existing).Error; err == nil {
		return response.BadRequest(c, "An instance with this name already exists")
	}

	sqlServer, err := h.Registry.AllocateSQL(ctx)
	if err != nil {
		return allocationError(c, "SQL", err)
	}
	mongoAlloc, err := h.Registry.AllocateMongo(ctx)
	if err != nil {
		return allocationError(c, "document store", err)
	}
	cacheServer, err := h.Registry.AllocateCache(ctx)
	if err != nil {
		return allocationError(c, "cache", err)
	}

	instance := models.Instance{
		ID:            utils.GenerateShortID(),
		Name:          req.Name,
		Secret:        utils.GenerateSecret(),
		SQLServerID:   &sqlServer.ID,
		CacheServerID: &cacheServer.ID,
		Hostnames:     models.MustJSON(req.Hostnames),
		AppDatabases:  models.MustJSON(appDatabases),
	}
	if mongoAlloc.ReplicaSet != nil {
		instance.MongoReplicaSetID = &mongoAlloc.ReplicaSet.ID
	} else {
		instance.MongoServerID = &mongoAlloc.Primary.ID
	}
	if req.Theme != nil {
		instance.Theme = models.MustJSON(req.Theme)
	}

	if req.CIProject != nil {
		ref := req.CIProject.Ref
		if ref == "" {
			ref = "main"
		}
		baseURL := req.CIProject.BaseURL
		if baseURL == "" {
			baseURL = h.Deps.Cfg.CIBaseURL
		}
		project := models.CIProject{
			ID:           utils.GenerateShortID(),
			Name:         req.CIProject.Name,
			ProjectID:    req.CIProject.ProjectID,
			BaseURL:      baseURL,
			Ref:          ref,
			TriggerToken: req.CIProject.TriggerToken,
		}
		if err := db.Create(&project).Error; err != nil {
			return response.InternalServerError(c, "Failed to create CI project")
		}
		instance.CIProjectID = &project.ID
	}

	if err := db.Create(&instance).Error; err != nil {
		log.Printf("Failed to create instance %s: %v", req.Name, err)
		return response.InternalServerError(c, "Failed to create instance")
	}

	return response.Success(c, fiber.Map{
		"id":     instance.ID,
		"name":   instance.Name,
		"secret": instance.Secret,
	})
}

func allocationError(c *fiber.Ctx, kind string, err error) error {
	if errors.Is(err, pool.ErrNoAvailableServer) {
		return response.Error(c, fiber.StatusServiceUnavailable, "No "+kind+" server accepts new clients")
	}
	log.Printf("Failed to allocate %s server: %v", kind, err)
	return response.InternalServerError(c, "Failed to allocate "+kind+" server")
}
