package provision

import (
	"context"
	"fmt"
	"log"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/models"
	"gorm.io/gorm"
)

// BlobAPI is the slice of the azblob client used for container management
type BlobAPI interface {
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	DeleteContainer(ctx context.Context, containerName string, o *azblob.DeleteContainerOptions) (azblob.DeleteContainerResponse, error)
}

// NewBlobClient builds the blob-storage client from shared-key credentials
func NewBlobClient(cfg *config.Config) (BlobAPI, error) {
	if cfg.AzureStorageAccount == "" || cfg.AzureStorageKey == "" {
		return nil, fmt.Errorf("blob storage credentials not configured")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AzureStorageAccount, cfg.AzureStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureStorageAccount)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob client: %w", err)
	}
	return client, nil
}

// BlobContainerProvisioner creates and deletes the tenant's named blob
// containers
type BlobContainerProvisioner struct {
	db       *gorm.DB
	instance *models.Instance
	client   BlobAPI
	names    *Names
}

func NewBlobContainerProvisioner(db *gorm.DB, instance *models.Instance, client BlobAPI, names *Names) *BlobContainerProvisioner {
	return &BlobContainerProvisioner{
		db:       db,
		instance: instance,
		client:   client,
		names:    names,
	}
}

func (p *BlobContainerProvisioner) Kind() models.BackendKind {
	return models.BackendKindBlobContainer
}

func (p *BlobContainerProvisioner) Provision(ctx context.Context) error {
	if p.instance.BlobProvisioned {
		return nil
	}

	for _, name := range p.names.BlobContainers() {
		_, err := p.client.CreateContainer(ctx, name, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return fmt.Errorf("failed to create container %s: %w", name, err)
		}
	}

	return p.db.Model(p.instance).Update("blobProvisioned", true).Error
}

// Deprovision deletes every container; a failure on one container is logged
// and skipped so the rest are still deleted
func (p *BlobContainerProvisioner) Deprovision(ctx context.Context, ignoreErrors bool) error {
	var firstErr error
	for _, name := range p.names.BlobContainers() {
		_, err := p.client.DeleteContainer(ctx, name, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerNotFound) {
			log.Printf("Failed to delete container %s, skipping: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete container %s: %w", name, err)
			}
		}
	}

	if firstErr != nil && !ignoreErrors {
		return firstErr
	}
	return p.db.Model(p.instance).Update("blobProvisioned", false).Error
}
