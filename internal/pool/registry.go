package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/utils"
	"gorm.io/gorm"
)

// ErrNoAvailableServer is returned when a pool has no entry accepting new
// clients. Allocation never silently degrades to an arbitrary server.
var ErrNoAvailableServer = errors.New("no server in pool accepts new clients")

// Registry allocates shared backend servers to tenants. Allocation is
// invoked from arbitrary tenant-creation paths, so the count-then-pick
// sequence runs inside a single transaction guarded by a mutex: concurrent
// callers never observe a candidate set that changes between the count and
// the pick.
type Registry struct {
	db       *gorm.DB
	defaults *config.PoolDefaults

	mu sync.Mutex
}

// MongoAllocation is the result of a document-store allocation. In
// replica-set mode the unit of allocation is the set; Primary is the member
// all writes must target.
type MongoAllocation struct {
	ReplicaSet *models.MongoReplicaSet
	Primary    *models.MongoServer
}

func NewRegistry(db *gorm.DB, defaults *config.PoolDefaults) *Registry {
	return &Registry{db: db, defaults: defaults}
}

// AllocateSQL picks a SQL server accepting new clients, uniformly at random.
func (r *Registry) AllocateSQL(ctx context.Context) (*models.SQLServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var picked *models.SQLServer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r.bootstrapSQL(tx)

		var count int64
		if err := tx.Model(&models.SQLServer{}).
			Where("acceptsNewClients = ?", true).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count SQL pool: %w", err)
		}
		if count == 0 {
			return ErrNoAvailableServer
		}

		var server models.SQLServer
		if err := tx.Where("acceptsNewClients = ?", true).
			Order("id").
			Offset(rand.Intn(int(count))).
			First(&server).Error; err != nil {
			return fmt.Errorf("failed to pick SQL server: %w", err)
		}
		picked = &server
		return nil
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

// AllocateCache picks a cache server accepting new clients, uniformly at random.
func (r *Registry) AllocateCache(ctx context.Context) (*models.CacheServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var picked *models.CacheServer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r.bootstrapCache(tx)

		var count int64
		if err := tx.Model(&models.CacheServer{}).
			Where("acceptsNewClients = ?", true).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count cache pool: %w", err)
		}
		if count == 0 {
			return ErrNoAvailableServer
		}

		var server models.CacheServer
		if err := tx.Where("acceptsNewClients = ?", true).
			Order("id").
			Offset(rand.Intn(int(count))).
			First(&server).Error; err != nil {
			return fmt.Errorf("failed to pick cache server: %w", err)
		}
		picked = &server
		return nil
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

// AllocateMongo picks a document-store allocation. When replica sets are
// configured the candidates are primary members of a set; a standalone
// server is only eligible when no replica sets exist at all.
func (r *Registry) AllocateMongo(ctx context.Context) (*MongoAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var alloc *MongoAllocation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r.bootstrapMongo(tx)

		var setCount int64
		if err := tx.Model(&models.MongoReplicaSet{}).Count(&setCount).Error; err != nil {
			return fmt.Errorf("failed to count replica sets: %w", err)
		}

		query := tx.Model(&models.MongoServer{}).Where("acceptsNewClients = ?", true)
		if setCount > 0 {
			// Replica-set mode: writes go to primaries only, so only a
			// set whose primary accepts clients is eligible.
			query = query.Where("isPrimary = ? AND replicaSetId IS NOT NULL", true)
		} else {
			query = query.Where("replicaSetId IS NULL")
		}

		var count int64
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count mongo pool: %w", err)
		}
		if count == 0 {
			return ErrNoAvailableServer
		}

		var primary models.MongoServer
		pick := tx.Where("acceptsNewClients = ?", true)
		if setCount > 0 {
			pick = pick.Where("isPrimary = ? AND replicaSetId IS NOT NULL", true)
		} else {
			pick = pick.Where("replicaSetId IS NULL")
		}
		if err := pick.Order("id").
			Offset(rand.Intn(int(count))).
			First(&primary).Error; err != nil {
			return fmt.Errorf("failed to pick mongo server: %w", err)
		}

		alloc = &MongoAllocation{Primary: &primary}
		if primary.ReplicaSetID != nil {
			var set models.MongoReplicaSet
			if err := tx.Preload("Members").First(&set, "id = ?", *primary.ReplicaSetID).Error; err != nil {
				return fmt.Errorf("failed to load replica set: %w", err)
			}
			alloc.ReplicaSet = &set
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// bootstrapSQL materializes the operator default the first time the pool is
// consulted. An existing entry with the same host but different port or
// credentials is never overwritten; manual operator changes win.
func (r *Registry) bootstrapSQL(tx *gorm.DB) {
	def := r.defaults.SQL
	if def.Host == "" {
		return
	}

	var existing models.SQLServer
	err := tx.Where("host = ?", def.Host).First(&existing).Error
	if err == nil {
		if existing.Port != def.Port || existing.Username != def.Username || existing.Password != def.Password {
			log.Printf("SQL pool entry for %s differs from configured default, leaving it untouched", def.Host)
		}
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to check SQL pool for %s: %v", def.Host, err)
		return
	}

	if err := tx.Create(&models.SQLServer{
		ID:                utils.GenerateShortID(),
		Host:              def.Host,
		Port:              def.Port,
		Username:          def.Username,
		Password:          def.Password,
		AcceptsNewClients: true,
	}).Error; err != nil {
		log.Printf("Failed to bootstrap SQL pool entry for %s: %v", def.Host, err)
	}
}

func (r *Registry) bootstrapCache(tx *gorm.DB) {
	def := r.defaults.Cache
	if def.Host == "" {
		return
	}

	var existing models.CacheServer
	err := tx.Where("host = ?", def.Host).First(&existing).Error
	if err == nil {
		if existing.Port != def.Port || existing.Username != def.Username || existing.Password != def.Password {
			log.Printf("Cache pool entry for %s differs from configured default, leaving it untouched", def.Host)
		}
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to check cache pool for %s: %v", def.Host, err)
		return
	}

	if err := tx.Create(&models.CacheServer{
		ID:                utils.GenerateShortID(),
		Host:              def.Host,
		Port:              def.Port,
		Username:          def.Username,
		Password:          def.Password,
		AcceptsNewClients: true,
	}).Error; err != nil {
		log.Printf("Failed to bootstrap cache pool entry for %s: %v", def.Host, err)
	}
}

func (r *Registry) bootstrapMongo(tx *gorm.DB) {
	def := r.defaults.Mongo
	if len(def.Members) == 0 {
		return
	}

	var setID *string
	if def.ReplicaSet != "" {
		var set models.MongoReplicaSet
		err := tx.Where("name = ?", def.ReplicaSet).First(&set).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			set = models.MongoReplicaSet{ID: utils.GenerateShortID(), Name: def.ReplicaSet}
			if err := tx.Create(&set).Error; err != nil {
				log.Printf("Failed to bootstrap mongo replica set %s: %v", def.ReplicaSet, err)
				return
			}
		} else if err != nil {
			log.Printf("Failed to check mongo replica set %s: %v", def.ReplicaSet, err)
			return
		}
		setID = &set.ID
	}

	for _, member := range def.Members {
		if member.Host == "" {
			continue
		}

		var existing models.MongoServer
		err := tx.Where("host = ?", member.Host).First(&existing).Error
		if err == nil {
			if existing.Port != member.Port || existing.Username != member.Username || existing.Password != member.Password {
				log.Printf("Mongo pool entry for %s differs from configured default, leaving it untouched", member.Host)
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Failed to check mongo pool for %s: %v", member.Host, err)
			continue
		}

		if err := tx.Create(&models.MongoServer{
			ID:                utils.GenerateShortID(),
			Host:              member.Host,
			Port:              member.Port,
			Username:          member.Username,
			Password:          member.Password,
			AcceptsNewClients: true,
			ReplicaSetID:      setID,
			Primary:           member.Primary,
		}).Error; err != nil {
			log.Printf("Failed to bootstrap mongo pool entry for %s: %v", member.Host, err)
		}
	}
}
