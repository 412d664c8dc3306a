package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hostara/hostara/api/internal/crypto"
	"github.com/hostara/hostara/api/internal/models"
	"gorm.io/gorm"
)

// sqlConn is the slice of database/sql used for tenant DDL
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Close() error
}

// SQLProvisioner creates per-tenant databases and users on a shared MySQL
// server. All statements use IF NOT EXISTS / IF EXISTS forms so a re-run
// against matching backend state is a no-op.
type SQLProvisioner struct {
	db       *gorm.DB
	instance *models.Instance
	server   *models.SQLServer
	names    *Names

	// overridable for tests
	connect func(ctx context.Context) (sqlConn, error)
}

func NewSQLProvisioner(db *gorm.DB, instance *models.Instance, server *models.SQLServer, names *Names) (*SQLProvisioner, error) {
	p := &SQLProvisioner{
		db:       db,
		instance: instance,
		server:   server,
		names:    names,
	}
	p.connect = p.adminConnect
	return p, nil
}

func (p *SQLProvisioner) Kind() models.BackendKind {
	return models.BackendKindSQL
}

func (p *SQLProvisioner) adminConnect(ctx context.Context) (sqlConn, error) {
	cfg := mysql.NewConfig()
	cfg.User = p.server.Username
	cfg.Passwd = p.server.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", p.server.Host, p.server.Port)

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection to %s: %w", p.server.Host, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach SQL server %s: %w", p.server.Host, err)
	}
	return conn, nil
}

func (p *SQLProvisioner) Provision(ctx context.Context) error {
	if p.instance.SQLProvisioned {
		return nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Global technical users: migrations and read-only reporting
	if err := p.ensureUser(ctx, conn, p.names.MigrationUser()); err != nil {
		return err
	}
	if err := p.ensureUser(ctx, conn, p.names.ReadOnlyUser()); err != nil {
		return err
	}

	// Admin user limited to creating further users
	admin := p.names.AdminUser()
	if err := p.ensureUser(ctx, conn, admin); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(
		"GRANT CREATE USER ON *.* TO %s@'%%'", quoteString(admin))); err != nil {
		return fmt.Errorf("failed to grant CREATE USER to %s: %w", admin, err)
	}

	// Per application database: a dedicated database and a user scoped to it,
	// plus grants for the two global users as each database is created
	for _, app := range p.names.AppDatabases() {
		dbName := p.names.DatabaseName(app)
		dbUser := p.names.DatabaseUser(app)

		// CREATE DATABASE cannot be parameterized; the name is escaped
		// before interpolation.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(
			"CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
			quoteIdent(dbName))); err != nil {
			return fmt.Errorf("failed to create database %s: %w", dbName, err)
		}

		if err := p.ensureUser(ctx, conn, dbUser); err != nil {
			return err
		}

		grants := []struct {
			priv string
			user string
		}{
			{"ALL PRIVILEGES", dbUser},
			{"ALL PRIVILEGES", p.names.MigrationUser()},
			{"SELECT", p.names.ReadOnlyUser()},
		}
		for _, g := range grants {
			if _, err := conn.ExecContext(ctx, fmt.Sprintf(
				"GRANT %s ON %s.* TO %s@'%%'",
				g.priv, quoteIdent(dbName), quoteString(g.user))); err != nil {
				return fmt.Errorf("failed to grant %s on %s to %s: %w", g.priv, dbName, g.user, err)
			}
		}
	}

	if _, err := conn.ExecContext(ctx, "FLUSH PRIVILEGES"); err != nil {
		return fmt.Errorf("failed to flush privileges: %w", err)
	}

	return p.db.Model(p.instance).Update("sqlProvisioned", true).Error
}

func (p *SQLProvisioner) Deprovision(ctx context.Context, ignoreErrors bool) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var errs []error
	run := func(query string, desc string) error {
		if _, err := conn.ExecContext(ctx, query); err != nil {
			wrapped := fmt.Errorf("failed to drop %s: %w", desc, err)
			if !ignoreErrors {
				return wrapped
			}
			errs = append(errs, wrapped)
		}
		return nil
	}

	for _, app := range p.names.AppDatabases() {
		dbName := p.names.DatabaseName(app)
		dbUser := p.names.DatabaseUser(app)
		if err := run(fmt.Sprintf("DROP USER IF EXISTS %s@'%%'", quoteString(dbUser)), "user "+dbUser); err != nil {
			return err
		}
		if err := run(fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(dbName)), "database "+dbName); err != nil {
			return err
		}
	}

	for _, user := range []string{p.names.MigrationUser(), p.names.ReadOnlyUser(), p.names.AdminUser()} {
		if err := run(fmt.Sprintf("DROP USER IF EXISTS %s@'%%'", quoteString(user)), "user "+user); err != nil {
			return err
		}
	}

	if err := p.db.Model(p.instance).Update("sqlProvisioned", false).Error; err != nil {
		return err
	}
	return errors.Join(errs...)
}

// ensureUser creates the user when missing and refreshes its derived
// password either way, so a partially-applied earlier run converges.
func (p *SQLProvisioner) ensureUser(ctx context.Context, conn sqlConn, user string) error {
	password, err := crypto.DerivePassword(p.instance.Secret, user)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE USER IF NOT EXISTS %s@'%%' IDENTIFIED BY %s",
		quoteString(user), quoteString(password))); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user, err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(
		"ALTER USER %s@'%%' IDENTIFIED BY %s",
		quoteString(user), quoteString(password))); err != nil {
		return fmt.Errorf("failed to set password for %s: %w", user, err)
	}
	return nil
}

// quoteIdent backtick-quotes a schema object name for interpolation into
// DDL, which cannot be parameterized
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// quoteString single-quotes a string literal for DDL statements
func quoteString(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}
