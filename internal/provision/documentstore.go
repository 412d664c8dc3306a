package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/hostara/hostara/api/internal/crypto"
	"github.com/hostara/hostara/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// MongoDB server error codes
const (
	mongoCodeUserNotFound = 11
	mongoCodeUserExists   = 51003
)

// documentStoreConn is the slice of the mongo client used for user management
type documentStoreConn interface {
	RunCommand(ctx context.Context, database string, cmd interface{}) error
	Close(ctx context.Context) error
}

// DocumentStoreProvisioner manages the single application user scoped to the
// tenant's primary and forum databases. Commands are always issued against
// the primary member; writes must never target a secondary.
type DocumentStoreProvisioner struct {
	db       *gorm.DB
	instance *models.Instance
	primary  *models.MongoServer
	names    *Names

	// overridable for tests
	connect func(ctx context.Context) (documentStoreConn, error)
}

func NewDocumentStoreProvisioner(db *gorm.DB, instance *models.Instance, primary *models.MongoServer, names *Names) *DocumentStoreProvisioner {
	p := &DocumentStoreProvisioner{
		db:       db,
		instance: instance,
		primary:  primary,
		names:    names,
	}
	p.connect = p.primaryConnect
	return p
}

func (p *DocumentStoreProvisioner) Kind() models.BackendKind {
	return models.BackendKindDocumentStore
}

type mongoConn struct {
	client *mongo.Client
}

func (c *mongoConn) RunCommand(ctx context.Context, database string, cmd interface{}) error {
	return c.client.Database(database).RunCommand(ctx, cmd).Err()
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// primaryConnect opens a direct connection to the primary member
func (p *DocumentStoreProvisioner) primaryConnect(ctx context.Context) (documentStoreConn, error) {
	uri := fmt.Sprintf("mongodb://%s:%d/?directConnection=true", p.primary.Host, p.primary.Port)
	opts := options.Client().ApplyURI(uri)
	if p.primary.Username != "" {
		opts = opts.SetAuth(options.Credential{
			Username: p.primary.Username,
			Password: p.primary.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store %s: %w", p.primary.Host, err)
	}
	return &mongoConn{client: client}, nil
}

func (p *DocumentStoreProvisioner) Provision(ctx context.Context) error {
	if p.instance.MongoProvisioned {
		return nil
	}

	user := p.names.DocumentStoreUser()
	password, err := crypto.DerivePassword(p.instance.Secret, user)
	if err != nil {
		return err
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	appDB := p.names.DocumentStoreDatabase()
	roles := bson.A{
		bson.D{{Key: "role", Value: "readWrite"}, {Key: "db", Value: appDB}},
		bson.D{{Key: "role", Value: "readWrite"}, {Key: "db", Value: p.names.ForumDatabase()}},
	}

	create := bson.D{
		{Key: "createUser", Value: user},
		{Key: "pwd", Value: password},
		{Key: "roles", Value: roles},
	}
	if err := conn.RunCommand(ctx, appDB, create); err != nil {
		if !hasMongoCode(err, mongoCodeUserExists) {
			return fmt.Errorf("failed to create document-store user %s: %w", user, err)
		}
		// Re-creation updates the password instead of failing
		update := bson.D{
			{Key: "updateUser", Value: user},
			{Key: "pwd", Value: password},
			{Key: "roles", Value: roles},
		}
		if err := conn.RunCommand(ctx, appDB, update); err != nil {
			return fmt.Errorf("failed to update document-store user %s: %w", user, err)
		}
	}

	return p.db.Model(p.instance).Update("mongoProvisioned", true).Error
}

func (p *DocumentStoreProvisioner) Deprovision(ctx context.Context, ignoreErrors bool) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	user := p.names.DocumentStoreUser()
	drop := bson.D{{Key: "dropUser", Value: user}}
	if err := conn.RunCommand(ctx, p.names.DocumentStoreDatabase(), drop); err != nil {
		if !hasMongoCode(err, mongoCodeUserNotFound) && !ignoreErrors {
			return fmt.Errorf("failed to drop document-store user %s: %w", user, err)
		}
	}

	return p.db.Model(p.instance).Update("mongoProvisioned", false).Error
}

func hasMongoCode(err error, code int) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(code)
	}
	return false
}
