package models

import "time"

// SQLServer is a shared MySQL server tenants draw databases from
type SQLServer struct {
	ID                string    `gorm:"primaryKey;size:191;column:id" json:"id"`
	Host              string    `gorm:"size:191;column:host" json:"host"`
	Port              int       `gorm:"default:3306;column:port" json:"port"`
	Username          string    `gorm:"size:191;column:username" json:"username"`
	Password          string    `gorm:"size:191;column:password" json:"-"`
	AcceptsNewClients bool      `gorm:"default:true;column:acceptsNewClients" json:"acceptsNewClients"`
	CreatedAt         time.Time `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
}

func (SQLServer) TableName() string {
	return "SQLServer"
}

// MongoReplicaSet groups document-store servers; allocation hands out the
// set, not an individual member
type MongoReplicaSet struct {
	ID        string        `gorm:"primaryKey;size:191;column:id" json:"id"`
	Name      string        `gorm:"uniqueIndex;size:191;column:name" json:"name"`
	CreatedAt time.Time     `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
	Members   []MongoServer `gorm:"foreignKey:ReplicaSetID" json:"members,omitempty"`
}

func (MongoReplicaSet) TableName() string {
	return "MongoReplicaSet"
}

// MongoServer is a shared document-store server, optionally a replica-set member
type MongoServer struct {
	ID                string           `gorm:"primaryKey;size:191;column:id" json:"id"`
	Host              string           `gorm:"size:191;column:host" json:"host"`
	Port              int              `gorm:"default:27017;column:port" json:"port"`
	Username          string           `gorm:"size:191;column:username" json:"username"`
	Password          string           `gorm:"size:191;column:password" json:"-"`
	AcceptsNewClients bool             `gorm:"default:true;column:acceptsNewClients" json:"acceptsNewClients"`
	ReplicaSetID      *string          `gorm:"index;size:191;column:replicaSetId" json:"replicaSetId,omitempty"`
	Primary           bool             `gorm:"default:false;column:isPrimary" json:"primary"`
	CreatedAt         time.Time        `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
	ReplicaSet        *MongoReplicaSet `gorm:"foreignKey:ReplicaSetID" json:"replicaSet,omitempty"`
}

func (MongoServer) TableName() string {
	return "MongoServer"
}

// CacheServer is a shared Redis server; tenants are isolated by ACL key prefixes
type CacheServer struct {
	ID                string    `gorm:"primaryKey;size:191;column:id" json:"id"`
	Host              string    `gorm:"size:191;column:host" json:"host"`
	Port              int       `gorm:"default:6379;column:port" json:"port"`
	Username          string    `gorm:"size:191;column:username" json:"username"`
	Password          string    `gorm:"size:191;column:password" json:"-"`
	AcceptsNewClients bool      `gorm:"default:true;column:acceptsNewClients" json:"acceptsNewClients"`
	CreatedAt         time.Time `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
}

func (CacheServer) TableName() string {
	return "CacheServer"
}
