package provision

import (
	"testing"

	"github.com/hostara/hostara/api/internal/database/testdb"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testAppDatabases = []string{"app", "reporting", "queue"}

func newTestInstance(t *testing.T, db *gorm.DB) *models.Instance {
	t.Helper()
	instance := &models.Instance{
		ID:           utils.GenerateShortID(),
		Name:         "acme-shop",
		Secret:       utils.GenerateSecret(),
		AppDatabases: models.MustJSON(testAppDatabases),
	}
	require.NoError(t, db.Create(instance).Error)
	return instance
}

func newTestNames(t *testing.T) *Names {
	t.Helper()
	names, err := NewNames("acme-shop", testAppDatabases)
	require.NoError(t, err)
	return names
}

func setupProvisionTest(t *testing.T) (*gorm.DB, *models.Instance, *Names) {
	t.Helper()
	db := testdb.Open(t)
	return db, newTestInstance(t, db), newTestNames(t)
}

func reloadInstance(t *testing.T, db *gorm.DB, id string) *models.Instance {
	t.Helper()
	var instance models.Instance
	require.NoError(t, db.First(&instance, "id = ?", id).Error)
	return &instance
}
