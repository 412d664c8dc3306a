package provision

import (
	"fmt"
	"regexp"
	"strings"
)

// Backend identifier length limits. MySQL caps user names at 32 characters
// and database names at 64; derived names must never exceed them.
const (
	maxUserNameLen     = 32
	maxDatabaseNameLen = 64

	suffixMigrator = "_migrator"
	suffixReadOnly = "_readonly"
	suffixAdmin    = "_admin"
	suffixForum    = "_forum"
)

var invalidIdentChars = regexp.MustCompile(`[^a-z0-9_]`)

// Names derives all backend identifiers for one tenant from its base name.
// Suffix lengths are validated at construction time, not at call time, so a
// provisioner can never emit a truncated or over-long identifier mid-run.
type Names struct {
	base         string
	appDatabases []string
}

func NewNames(base string, appDatabases []string) (*Names, error) {
	sanitized := invalidIdentChars.ReplaceAllString(
		strings.ReplaceAll(strings.ToLower(base), "-", "_"), "")
	if sanitized == "" {
		return nil, fmt.Errorf("tenant base name %q yields an empty identifier", base)
	}

	longestUserSuffix := len(suffixMigrator) // longest of the fixed user suffixes
	longestDBSuffix := len(suffixForum)
	for _, db := range appDatabases {
		if l := len(db) + 1; l > longestUserSuffix {
			longestUserSuffix = l
		}
		if l := len(db) + 1; l > longestDBSuffix {
			longestDBSuffix = l
		}
	}

	if len(sanitized)+longestUserSuffix > maxUserNameLen {
		return nil, fmt.Errorf("tenant base name %q too long: derived user names would exceed %d characters", base, maxUserNameLen)
	}
	if len(sanitized)+longestDBSuffix > maxDatabaseNameLen {
		return nil, fmt.Errorf("tenant base name %q too long: derived database names would exceed %d characters", base, maxDatabaseNameLen)
	}

	return &Names{base: sanitized, appDatabases: appDatabases}, nil
}

func (n *Names) Base() string { return n.base }

// MigrationUser is the global technical user running schema migrations
func (n *Names) MigrationUser() string { return n.base + suffixMigrator }

// ReadOnlyUser is the global technical user with SELECT-only access
func (n *Names) ReadOnlyUser() string { return n.base + suffixReadOnly }

// AdminUser may create further users and nothing else
func (n *Names) AdminUser() string { return n.base + suffixAdmin }

// DatabaseName is the dedicated database for one application database name
func (n *Names) DatabaseName(app string) string { return n.base + "_" + app }

// DatabaseUser is the user granted privileges on exactly one application database
func (n *Names) DatabaseUser(app string) string { return n.base + "_" + app }

// AppDatabases returns the configured application database names
func (n *Names) AppDatabases() []string { return n.appDatabases }

// DocumentStoreUser is the single document-store application user
func (n *Names) DocumentStoreUser() string { return n.base }

// DocumentStoreDatabase is the primary application database
func (n *Names) DocumentStoreDatabase() string { return n.base }

// ForumDatabase is the secondary document-store database
func (n *Names) ForumDatabase() string { return n.base + suffixForum }

// CacheUser is the cache ACL user; its keyspace is CachePrefix
func (n *Names) CacheUser() string { return n.base }

// CachePrefix scopes the tenant to a private key prefix so many tenants can
// share one cache instance
func (n *Names) CachePrefix() string { return n.base + ":*" }

// BucketName is the tenant's single object-storage bucket
func (n *Names) BucketName() string {
	return "hostara-" + strings.ReplaceAll(n.base, "_", "-")
}

// StorageIdentity is the dedicated object-storage identity name
func (n *Names) StorageIdentity() string {
	return "hostara-" + strings.ReplaceAll(n.base, "_", "-")
}

// StoragePolicyName names the inline least-privilege policy
func (n *Names) StoragePolicyName() string {
	return n.StorageIdentity() + "-bucket-access"
}

// BlobContainers lists the tenant's blob container names
func (n *Names) BlobContainers() []string {
	hyphenated := strings.ReplaceAll(n.base, "_", "-")
	return []string{hyphenated + "-media", hyphenated + "-static"}
}
