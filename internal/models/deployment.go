package models

import "time"

// Deployment is one requested deployment of an instance. Status is mutated
// only by the state machine and the scheduler, never by provisioners.
type Deployment struct {
	ID          string           `gorm:"primaryKey;size:191;column:id" json:"id"`
	InstanceID  string           `gorm:"index;size:191;column:instanceId" json:"instanceId"`
	Type        DeploymentType   `gorm:"size:191;default:UPDATE_INSTANCE;column:type" json:"type"`
	Status      DeploymentStatus `gorm:"size:191;default:PENDING;column:status" json:"status"`
	Overrides   JSON             `gorm:"type:json;column:overrides" json:"overrides,omitempty"`
	TriggeredBy *string          `gorm:"size:191;column:triggeredBy" json:"triggeredBy,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
	CompletedAt *time.Time       `gorm:"column:completedAt" json:"completedAt,omitempty"`
	Instance    Instance         `gorm:"foreignKey:InstanceID" json:"instance,omitempty"`
	Pipeline    *Pipeline        `gorm:"foreignKey:DeploymentID" json:"pipeline,omitempty"`
}

func (Deployment) TableName() string {
	return "Deployment"
}

// OverrideVariables unpacks the free-form override payload merged into the
// CI trigger variables
func (d *Deployment) OverrideVariables() map[string]string {
	vars := map[string]string{}
	if d.Overrides != nil {
		d.Overrides.UnmarshalTo(&vars)
	}
	return vars
}

// Pipeline mirrors one external CI run, 1:1 with a Deployment. Created at
// trigger time, mutated only by webhook ingestion.
type Pipeline struct {
	ID           string         `gorm:"primaryKey;size:191;column:id" json:"id"`
	DeploymentID string         `gorm:"uniqueIndex;size:191;column:deploymentId" json:"deploymentId"`
	RunID        int            `gorm:"column:runId" json:"runId"`
	Status       PipelineStatus `gorm:"size:191;default:CREATED;column:status" json:"status"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime;column:updatedAt" json:"updatedAt"`
	Deployment   Deployment     `gorm:"foreignKey:DeploymentID;references:ID" json:"deployment,omitempty"`
}

func (Pipeline) TableName() string {
	return "Pipeline"
}
