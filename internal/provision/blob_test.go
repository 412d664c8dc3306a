package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobAPI struct {
	created   []string
	deleted   []string
	createErr map[string]error
	deleteErr map[string]error
}

func (f *fakeBlobAPI) CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error) {
	f.created = append(f.created, containerName)
	return azblob.CreateContainerResponse{}, f.createErr[containerName]
}

func (f *fakeBlobAPI) DeleteContainer(ctx context.Context, containerName string, o *azblob.DeleteContainerOptions) (azblob.DeleteContainerResponse, error) {
	f.deleted = append(f.deleted, containerName)
	return azblob.DeleteContainerResponse{}, f.deleteErr[containerName]
}

func blobErr(code bloberror.Code) error {
	return &azcore.ResponseError{ErrorCode: string(code)}
}

func TestBlobProvisionCreatesContainers(t *testing.T) {
	db, instance, names := setupProvisionTest(t)
	api := &fakeBlobAPI{}
	p := NewBlobContainerProvisioner(db, instance, api, names)

	require.NoError(t, p.Provision(context.Background()))
	assert.Equal(t, []string{"acme-shop-media", "acme-shop-static"}, api.created)
	assert.True(t, reloadInstance(t, db, instance.ID).BlobProvisioned)
}

func TestBlobProvisionToleratesExistingContainer(t *testing.T) {
	db, instance, names := setupProvisionTest(t)
	api := &fakeBlobAPI{
		createErr: map[string]error{"acme-shop-media": blobErr(bloberror.ContainerAlreadyExists)},
	}
	p := NewBlobContainerProvisioner(db, instance, api, names)

	require.NoError(t, p.Provision(context.Background()))
	assert.Len(t, api.created, 2)
}

func TestBlobProvisionFailsOnOtherError(t *testing.T) {
	db, instance, names := setupProvisionTest(t)
	api := &fakeBlobAPI{
		createErr: map[string]error{"acme-shop-media": errors.New("storage account down")},
	}
	p := NewBlobContainerProvisioner(db, instance, api, names)

	assert.Error(t, p.Provision(context.Background()))
	assert.False(t, reloadInstance(t, db, instance.ID).BlobProvisioned)
}

func TestBlobDeprovisionSkipsFailedContainers(t *testing.T) {
	db, instance, names := setupProvisionTest(t)
	api := &fakeBlobAPI{
		deleteErr: map[string]error{"acme-shop-media": errors.New("lease held")},
	}
	p := NewBlobContainerProvisioner(db, instance, api, names)

	err := p.Deprovision(context.Background(), false)
	require.Error(t, err)
	// Both deletes were attempted despite the first failing
	assert.Equal(t, []string{"acme-shop-media", "acme-shop-static"}, api.deleted)

	require.NoError(t, p.Deprovision(context.Background(), true))
	assert.False(t, reloadInstance(t, db, instance.ID).BlobProvisioned)
}

func TestBlobDeprovisionToleratesMissingContainer(t *testing.T) {
	db, instance, names := setupProvisionTest(t)
	api := &fakeBlobAPI{
		deleteErr: map[string]error{"acme-shop-media": blobErr(bloberror.ContainerNotFound)},
	}
	p := NewBlobContainerProvisioner(db, instance, api, names)

	require.NoError(t, p.Deprovision(context.Background(), false))
	assert.False(t, reloadInstance(t, db, instance.ID).BlobProvisioned)
}
