package pool

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/database/testdb"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T, defaults *config.PoolDefaults) (*Registry, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	if defaults == nil {
		defaults = &config.PoolDefaults{}
	}
	return NewRegistry(db, defaults), db
}

func createSQLServer(t *testing.T, db *gorm.DB, host string, accepts bool) *models.SQLServer {
	t.Helper()
	server := &models.SQLServer{
		ID:                utils.GenerateShortID(),
		Host:              host,
		Port:              3306,
		Username:          "root",
		Password:          "root",
		AcceptsNewClients: accepts,
	}
	require.NoError(t, db.Create(server).Error)
	// The column carries a true default, so a false value must be forced
	require.NoError(t, db.Model(server).UpdateColumn("acceptsNewClients", accepts).Error)
	return server
}

func TestAllocateSQLSkipsClosedServers(t *testing.T) {
	registry, db := newTestRegistry(t, nil)

	createSQLServer(t, db, "closed-1.internal", false)
	open := createSQLServer(t, db, "open.internal", true)
	createSQLServer(t, db, "closed-2.internal", false)

	for i := 0; i < 10; i++ {
		picked, err := registry.AllocateSQL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, open.ID, picked.ID)
	}
}

func TestAllocateSQLEmptyPool(t *testing.T) {
	registry, db := newTestRegistry(t, nil)
	createSQLServer(t, db, "closed.internal", false)

	_, err := registry.AllocateSQL(context.Background())
	assert.ErrorIs(t, err, ErrNoAvailableServer)
}

func TestAllocateSQLBootstrapsDefault(t *testing.T) {
	registry, db := newTestRegistry(t, &config.PoolDefaults{
		SQL: config.ServerDefault{Host: "default-sql.internal", Port: 3306, Username: "root", Password: "pw"},
	})

	picked, err := registry.AllocateSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default-sql.internal", picked.Host)

	// A second allocation must not create a duplicate entry
	_, err = registry.AllocateSQL(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.SQLServer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBootstrapInsertFailureIsLogged(t *testing.T) {
	registry, db := newTestRegistry(t, &config.PoolDefaults{
		SQL: config.ServerDefault{Host: "default-sql.internal", Port: 3306, Username: "root", Password: "pw"},
	})

	// Block the bootstrap insert so the failure path is observable
	require.NoError(t, db.Exec(
		`CREATE TRIGGER blockInsert BEFORE INSERT ON SQLServer BEGIN SELECT RAISE(ABORT, 'insert blocked'); END`,
	).Error)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	_, err := registry.AllocateSQL(context.Background())
	assert.ErrorIs(t, err, ErrNoAvailableServer)
	assert.Contains(t, buf.String(), "Failed to bootstrap SQL pool entry")
}

func TestBootstrapNeverOverwritesOperatorChanges(t *testing.T) {
	registry, db := newTestRegistry(t, &config.PoolDefaults{
		SQL: config.ServerDefault{Host: "sql.internal", Port: 3306, Username: "root", Password: "pw"},
	})

	existing := &models.SQLServer{
		ID:                utils.GenerateShortID(),
		Host:              "sql.internal",
		Port:              3307,
		Username:          "operator",
		Password:          "changed",
		AcceptsNewClients: true,
	}
	require.NoError(t, db.Create(existing).Error)

	_, err := registry.AllocateSQL(context.Background())
	require.NoError(t, err)

	var reloaded models.SQLServer
	require.NoError(t, db.First(&reloaded, "id = ?", existing.ID).Error)
	assert.Equal(t, 3307, reloaded.Port)
	assert.Equal(t, "operator", reloaded.Username)

	var count int64
	require.NoError(t, db.Model(&models.SQLServer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAllocateCache(t *testing.T) {
	registry, db := newTestRegistry(t, nil)

	server := &models.CacheServer{
		ID:                utils.GenerateShortID(),
		Host:              "cache.internal",
		Port:              6379,
		AcceptsNewClients: true,
	}
	require.NoError(t, db.Create(server).Error)

	picked, err := registry.AllocateCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, server.ID, picked.ID)
}

func TestAllocateMongoStandalone(t *testing.T) {
	registry, db := newTestRegistry(t, nil)

	server := &models.MongoServer{
		ID:                utils.GenerateShortID(),
		Host:              "mongo.internal",
		Port:              27017,
		AcceptsNewClients: true,
	}
	require.NoError(t, db.Create(server).Error)

	alloc, err := registry.AllocateMongo(context.Background())
	require.NoError(t, err)
	assert.Nil(t, alloc.ReplicaSet)
	require.NotNil(t, alloc.Primary)
	assert.Equal(t, server.ID, alloc.Primary.ID)
}

func TestAllocateMongoReplicaSetMode(t *testing.T) {
	registry, db := newTestRegistry(t, nil)

	set := &models.MongoReplicaSet{ID: utils.GenerateShortID(), Name: "rs0"}
	require.NoError(t, db.Create(set).Error)

	primary := &models.MongoServer{
		ID:                utils.GenerateShortID(),
		Host:              "mongo-1.internal",
		Port:              27017,
		AcceptsNewClients: true,
		ReplicaSetID:      &set.ID,
		Primary:           true,
	}
	secondary := &models.MongoServer{
		ID:                utils.GenerateShortID(),
		Host:              "mongo-2.internal",
		Port:              27017,
		AcceptsNewClients: true,
		ReplicaSetID:      &set.ID,
	}
	// A standalone server must not be eligible once replica sets exist
	standalone := &models.MongoServer{
		ID:                utils.GenerateShortID(),
		Host:              "mongo-standalone.internal",
		Port:              27017,
		AcceptsNewClients: true,
	}
	require.NoError(t, db.Create(primary).Error)
	require.NoError(t, db.Create(secondary).Error)
	require.NoError(t, db.Create(standalone).Error)

	for i := 0; i < 10; i++ {
		alloc, err := registry.AllocateMongo(context.Background())
		require.NoError(t, err)
		require.NotNil(t, alloc.ReplicaSet)
		assert.Equal(t, set.ID, alloc.ReplicaSet.ID)
		assert.Equal(t, primary.ID, alloc.Primary.ID)
		assert.Len(t, alloc.ReplicaSet.Members, 2)
	}
}

func TestAllocateMongoReplicaSetPrimaryClosed(t *testing.T) {
	registry, db := newTestRegistry(t, nil)

	set := &models.MongoReplicaSet{ID: utils.GenerateShortID(), Name: "rs0"}
	require.NoError(t, db.Create(set).Error)
	closedPrimary := &models.MongoServer{
		ID:           utils.GenerateShortID(),
		Host:         "mongo-1.internal",
		Port:         27017,
		ReplicaSetID: &set.ID,
		Primary:      true,
	}
	require.NoError(t, db.Create(closedPrimary).Error)
	require.NoError(t, db.Model(closedPrimary).UpdateColumn("acceptsNewClients", false).Error)

	_, err := registry.AllocateMongo(context.Background())
	assert.ErrorIs(t, err, ErrNoAvailableServer)
}

func TestAllocateSQLConcurrent(t *testing.T) {
	registry, db := newTestRegistry(t, nil)
	createSQLServer(t, db, "sql-1.internal", true)
	createSQLServer(t, db, "sql-2.internal", true)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.AllocateSQL(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
