package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// PoolDefaults is the static operator configuration used to bootstrap empty
// server pools on demand. It never overwrites entries an operator has
// already changed by hand.
type PoolDefaults struct {
	SQL   ServerDefault    `yaml:"sql"`
	Mongo MongoPoolDefault `yaml:"mongo"`
	Cache ServerDefault    `yaml:"cache"`
}

type ServerDefault struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoPoolDefault struct {
	ReplicaSet string               `yaml:"replicaSet,omitempty"`
	Members    []MongoMemberDefault `yaml:"members"`
}

type MongoMemberDefault struct {
	ServerDefault `yaml:",inline"`
	Primary       bool `yaml:"primary"`
}

var (
	poolDefaults    *PoolDefaults
	poolDefaultsErr error
	poolsOnce       sync.Once
)

// Pools returns the operator pool defaults, reading SERVER_POOLS_FILE when
// configured and falling back to the individual env vars otherwise.
func (c *Config) Pools() (*PoolDefaults, error) {
	poolsOnce.Do(func() {
		if c.ServerPoolsFile != "" {
			data, err := os.ReadFile(c.ServerPoolsFile)
			if err != nil {
				poolDefaultsErr = fmt.Errorf("failed to read server pools file: %w", err)
				return
			}
			var defaults PoolDefaults
			if err := yaml.Unmarshal(data, &defaults); err != nil {
				poolDefaultsErr = fmt.Errorf("failed to parse server pools file: %w", err)
				return
			}
			poolDefaults = &defaults
			return
		}

		poolDefaults = &PoolDefaults{
			SQL: ServerDefault{
				Host:     c.DefaultSQLHost,
				Port:     c.DefaultSQLPort,
				Username: c.DefaultSQLUser,
				Password: c.DefaultSQLPassword,
			},
			Mongo: MongoPoolDefault{
				ReplicaSet: c.DefaultMongoReplicaSet,
				Members: []MongoMemberDefault{
					{
						ServerDefault: ServerDefault{
							Host:     c.DefaultMongoHost,
							Port:     c.DefaultMongoPort,
							Username: c.DefaultMongoUser,
							Password: c.DefaultMongoPassword,
						},
						Primary: true,
					},
				},
			},
			Cache: ServerDefault{
				Host:     c.DefaultCacheHost,
				Port:     c.DefaultCachePort,
				Username: c.DefaultCacheUser,
				Password: c.DefaultCachePassword,
			},
		}
	})
	return poolDefaults, poolDefaultsErr
}

// SetPools replaces the pool defaults (for testing purposes only)
func SetPools(defaults *PoolDefaults) {
	poolsOnce.Do(func() {})
	poolDefaults = defaults
	poolDefaultsErr = nil
}
