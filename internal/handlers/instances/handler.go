package instances

import (
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/pool"
	"github.com/hostara/hostara/api/internal/provision"
)

// Handler serves the instance lifecycle surface
type Handler struct {
	Registry *pool.Registry
	Deps     provision.Deps
}

func NewHandler(registry *pool.Registry, deps provision.Deps) *Handler {
	return &Handler{Registry: registry, Deps: deps}
}

// loadInstance fetches an instance with every relation the provisioner set
// is built from
func loadInstance(instanceID string) (*models.Instance, error) {
	db := database.GetDatabase()

	var instance models.Instance
	err := db.Preload("SQLServer").
		Preload("MongoServer").
		Preload("MongoReplicaSet.Members").
		Preload("CacheServer").
		Preload("CIProject").
		Where("id = ? AND deletedAt IS NULL", instanceID).
		First(&instance).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}
