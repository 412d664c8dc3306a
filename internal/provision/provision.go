package provision

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/models"
	redisx "github.com/hostara/hostara/api/internal/redis"
	"gorm.io/gorm"
)

// ErrConfiguration marks a fatal operator-configuration problem. It is never
// retried and must surface to the operator.
var ErrConfiguration = errors.New("provisioning configuration error")

// Provisioner creates and destroys one backend's per-tenant resources.
// Provision is gated by the instance's persisted provisioned flag but must
// also be safe to re-run against backend state that already matches the
// desired state, since the flag can lag reality after a partial failure.
type Provisioner interface {
	Kind() models.BackendKind
	Provision(ctx context.Context) error
	Deprovision(ctx context.Context, ignoreErrors bool) error
}

// Deps carries the external clients the provisioner set is built from.
// Ownership stays with the service lifecycle; provisioners only borrow.
type Deps struct {
	DB    *gorm.DB
	Cfg   *config.Config
	Cache *redisx.ClientRegistry
	S3    S3API
	IAM   IAMAPI
	Blob  BlobAPI
}

// ForInstance composes the provisioner set for one tenant from its allocated
// servers and the configured cloud backends.
func ForInstance(deps Deps, instance *models.Instance) ([]Provisioner, error) {
	names, err := NewNames(instance.Name, deps.Cfg.AppDatabases)
	if err != nil {
		return nil, err
	}

	var set []Provisioner

	if instance.SQLServer != nil {
		p, err := NewSQLProvisioner(deps.DB, instance, instance.SQLServer, names)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}

	if instance.MongoServer != nil || instance.MongoReplicaSet != nil {
		primary, err := mongoPrimary(instance)
		if err != nil {
			return nil, err
		}
		set = append(set, NewDocumentStoreProvisioner(deps.DB, instance, primary, names))
	}

	if instance.CacheServer != nil {
		set = append(set, NewCacheProvisioner(deps.DB, instance, instance.CacheServer, deps.Cache, names))
	}

	if deps.S3 != nil && deps.IAM != nil {
		set = append(set, NewObjectStorageProvisioner(deps.DB, instance, deps.S3, deps.IAM, deps.Cfg, names))
	}

	if deps.Blob != nil {
		set = append(set, NewBlobContainerProvisioner(deps.DB, instance, deps.Blob, names))
	}

	return set, nil
}

// mongoPrimary resolves the member all document-store writes must target
func mongoPrimary(instance *models.Instance) (*models.MongoServer, error) {
	if instance.MongoReplicaSet != nil {
		for i := range instance.MongoReplicaSet.Members {
			if instance.MongoReplicaSet.Members[i].Primary {
				return &instance.MongoReplicaSet.Members[i], nil
			}
		}
		return nil, fmt.Errorf("%w: replica set %s has no primary member", ErrConfiguration, instance.MongoReplicaSet.Name)
	}
	if instance.MongoServer != nil {
		return instance.MongoServer, nil
	}
	return nil, fmt.Errorf("%w: no document-store server allocated", ErrConfiguration)
}

// ProvisionAll runs every provisioner in the set, stopping at the first
// failure so the per-backend provisioned flags stay truthful.
func ProvisionAll(ctx context.Context, set []Provisioner) error {
	for _, p := range set {
		if err := p.Provision(ctx); err != nil {
			return fmt.Errorf("%s provisioning failed: %w", p.Kind(), err)
		}
	}
	return nil
}

// DeprovisionAll tears down every backend. With ignoreErrors set each
// provisioner keeps going past individual failures and the collected errors
// are reported at the end.
func DeprovisionAll(ctx context.Context, set []Provisioner, ignoreErrors bool) error {
	var errs []error
	for _, p := range set {
		if err := p.Deprovision(ctx, ignoreErrors); err != nil {
			if !ignoreErrors {
				return fmt.Errorf("%s deprovisioning failed: %w", p.Kind(), err)
			}
			log.Printf("Ignoring %s deprovisioning failure: %v", p.Kind(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
