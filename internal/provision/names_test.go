package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesDerivation(t *testing.T) {
	names, err := NewNames("Acme-Shop", []string{"app", "reporting"})
	require.NoError(t, err)

	assert.Equal(t, "acme_shop", names.Base())
	assert.Equal(t, "acme_shop_migrator", names.MigrationUser())
	assert.Equal(t, "acme_shop_readonly", names.ReadOnlyUser())
	assert.Equal(t, "acme_shop_admin", names.AdminUser())
	assert.Equal(t, "acme_shop_app", names.DatabaseName("app"))
	assert.Equal(t, "acme_shop_reporting", names.DatabaseUser("reporting"))
	assert.Equal(t, "acme_shop", names.DocumentStoreUser())
	assert.Equal(t, "acme_shop_forum", names.ForumDatabase())
	assert.Equal(t, "acme_shop", names.CacheUser())
	assert.Equal(t, "acme_shop:*", names.CachePrefix())
}

func TestNamesSanitization(t *testing.T) {
	names, err := NewNames("Caffè & Co!", []string{"app"})
	require.NoError(t, err)
	assert.Equal(t, "caffco", names.Base())
}

func TestNamesStorageIdentifiers(t *testing.T) {
	names, err := NewNames("acme-shop", []string{"app"})
	require.NoError(t, err)

	assert.Equal(t, "hostara-acme-shop", names.BucketName())
	assert.Equal(t, "hostara-acme-shop", names.StorageIdentity())
	assert.Equal(t, "hostara-acme-shop-bucket-access", names.StoragePolicyName())
	assert.Equal(t, []string{"acme-shop-media", "acme-shop-static"}, names.BlobContainers())
}

func TestNamesRejectsEmptyIdentifier(t *testing.T) {
	_, err := NewNames("!!!", []string{"app"})
	assert.Error(t, err)
}

func TestNamesRejectsOverlongUserNames(t *testing.T) {
	// 24 chars base + "_migrator" (9) would exceed the 32-char user limit
	_, err := NewNames("a-very-long-tenant-name-x", []string{"app"})
	assert.Error(t, err)
}

func TestNamesLongAppDatabaseCountsTowardLimit(t *testing.T) {
	_, err := NewNames("shorty", []string{"a_quite_long_application_db"})
	assert.Error(t, err)
}
