package provision

import (
	"context"
	"fmt"

	"github.com/hostara/hostara/api/internal/crypto"
	"github.com/hostara/hostara/api/internal/models"
	redisx "github.com/hostara/hostara/api/internal/redis"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// cacheConn is the slice of go-redis used for ACL management
type cacheConn interface {
	ACLSetUser(ctx context.Context, username string, rules ...string) *redis.StatusCmd
	ACLDelUser(ctx context.Context, username string) *redis.IntCmd
}

// CacheProvisioner manages the tenant's ACL entry on a shared cache server.
// The entry scopes the tenant's credentials to keys under its private
// prefix so tenants sharing one instance cannot collide.
type CacheProvisioner struct {
	db       *gorm.DB
	instance *models.Instance
	server   *models.CacheServer
	names    *Names

	// overridable for tests
	conn func() cacheConn
}

func NewCacheProvisioner(db *gorm.DB, instance *models.Instance, server *models.CacheServer, registry *redisx.ClientRegistry, names *Names) *CacheProvisioner {
	return &CacheProvisioner{
		db:       db,
		instance: instance,
		server:   server,
		names:    names,
		conn:     func() cacheConn { return registry.Get(server) },
	}
}

func (p *CacheProvisioner) Kind() models.BackendKind {
	return models.BackendKindCache
}

func (p *CacheProvisioner) Provision(ctx context.Context) error {
	if p.instance.CacheProvisioned {
		return nil
	}

	user := p.names.CacheUser()
	password, err := crypto.DerivePassword(p.instance.Secret, user)
	if err != nil {
		return err
	}

	// reset first so a re-run converges instead of accumulating rules
	rules := []string{
		"reset",
		"on",
		">" + password,
		"~" + p.names.CachePrefix(),
		"+@all",
		"-@admin",
		"-@dangerous",
	}
	if err := p.conn().ACLSetUser(ctx, user, rules...).Err(); err != nil {
		return fmt.Errorf("failed to set ACL for cache user %s: %w", user, err)
	}

	return p.db.Model(p.instance).Update("cacheProvisioned", true).Error
}

// Deprovision removes the ACL entry; an already-absent entry is success
func (p *CacheProvisioner) Deprovision(ctx context.Context, ignoreErrors bool) error {
	user := p.names.CacheUser()
	if err := p.conn().ACLDelUser(ctx, user).Err(); err != nil && !ignoreErrors {
		return fmt.Errorf("failed to delete ACL for cache user %s: %w", user, err)
	}
	return p.db.Model(p.instance).Update("cacheProvisioned", false).Error
}
