package models

import "time"

// Instance is one hosted application tenant and its allocated backend resources.
// The per-backend *Provisioned flags are the durable signal that the backend's
// create side effects have actually been applied.
type Instance struct {
	ID     string `gorm:"primaryKey;size:191;column:id" json:"id"`
	Name   string `gorm:"uniqueIndex;size:191;column:name" json:"name"`
	Secret string `gorm:"size:191;column:secret" json:"-"`

	// Allocated shared servers, one per backend kind
	SQLServerID       *string `gorm:"index;size:191;column:sqlServerId" json:"sqlServerId,omitempty"`
	MongoServerID     *string `gorm:"index;size:191;column:mongoServerId" json:"mongoServerId,omitempty"`
	MongoReplicaSetID *string `gorm:"index;size:191;column:mongoReplicaSetId" json:"mongoReplicaSetId,omitempty"`
	CacheServerID     *string `gorm:"index;size:191;column:cacheServerId" json:"cacheServerId,omitempty"`

	// Per-backend provisioning state
	SQLProvisioned     bool `gorm:"default:false;column:sqlProvisioned" json:"sqlProvisioned"`
	MongoProvisioned   bool `gorm:"default:false;column:mongoProvisioned" json:"mongoProvisioned"`
	CacheProvisioned   bool `gorm:"default:false;column:cacheProvisioned" json:"cacheProvisioned"`
	StorageProvisioned bool `gorm:"default:false;column:storageProvisioned" json:"storageProvisioned"`
	BlobProvisioned    bool `gorm:"default:false;column:blobProvisioned" json:"blobProvisioned"`

	// One-way marker flipped the first time a pipeline reports success,
	// never cleared automatically
	SuccessfullyProvisioned bool `gorm:"default:false;column:successfullyProvisioned" json:"successfullyProvisioned"`

	// Object-storage resources, cleared field by field as deprovisioning
	// steps succeed so a retry resumes from the right point
	StorageBucket      *string `gorm:"size:191;column:storageBucket" json:"storageBucket,omitempty"`
	StorageIAMUser     *string `gorm:"size:191;column:storageIamUser" json:"storageIamUser,omitempty"`
	StoragePolicyName  *string `gorm:"size:191;column:storagePolicyName" json:"storagePolicyName,omitempty"`
	StorageAccessKeyID *string `gorm:"size:191;column:storageAccessKeyId" json:"storageAccessKeyId,omitempty"`
	StorageSecretKey   *string `gorm:"type:text;column:storageSecretKey" json:"-"`

	// Collaborator-supplied configuration merged into CI trigger variables
	Hostnames    JSON `gorm:"type:json;column:hostnames" json:"hostnames,omitempty"`
	Theme        JSON `gorm:"type:json;column:theme" json:"theme,omitempty"`
	AppDatabases JSON `gorm:"type:json;column:appDatabases" json:"appDatabases,omitempty"`

	CIProjectID *string `gorm:"index;size:191;column:ciProjectId" json:"ciProjectId,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"index;column:deletedAt" json:"deletedAt,omitempty"`

	SQLServer       *SQLServer       `gorm:"foreignKey:SQLServerID" json:"sqlServer,omitempty"`
	MongoServer     *MongoServer     `gorm:"foreignKey:MongoServerID" json:"mongoServer,omitempty"`
	MongoReplicaSet *MongoReplicaSet `gorm:"foreignKey:MongoReplicaSetID" json:"mongoReplicaSet,omitempty"`
	CacheServer     *CacheServer     `gorm:"foreignKey:CacheServerID" json:"cacheServer,omitempty"`
	CIProject       *CIProject       `gorm:"foreignKey:CIProjectID" json:"ciProject,omitempty"`
	Deployments     []Deployment     `gorm:"foreignKey:InstanceID" json:"deployments,omitempty"`
}

func (Instance) TableName() string {
	return "Instance"
}

// AppDatabaseNames unpacks the JSON list of application database names
func (i *Instance) AppDatabaseNames() []string {
	var names []string
	if i.AppDatabases != nil {
		i.AppDatabases.UnmarshalTo(&names)
	}
	return names
}

// HostnameList unpacks the JSON list of resolved hostnames
func (i *Instance) HostnameList() []string {
	var names []string
	if i.Hostnames != nil {
		i.Hostnames.UnmarshalTo(&names)
	}
	return names
}

// CIProject is the external CI project a tenant's deployments run in
type CIProject struct {
	ID           string    `gorm:"primaryKey;size:191;column:id" json:"id"`
	Name         string    `gorm:"size:191;column:name" json:"name"`
	ProjectID    int       `gorm:"column:projectId" json:"projectId"`
	BaseURL      string    `gorm:"size:191;column:baseUrl" json:"baseUrl"`
	Ref          string    `gorm:"size:191;default:main;column:ref" json:"ref"`
	TriggerToken string    `gorm:"size:191;column:triggerToken" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
}

func (CIProject) TableName() string {
	return "CIProject"
}
