package models

// DeploymentStatus enum
type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "PENDING"
	DeploymentStatusTriggered DeploymentStatus = "TRIGGERED"
	DeploymentStatusDeployed  DeploymentStatus = "DEPLOYED"
	DeploymentStatusCancelled DeploymentStatus = "CANCELLED"
	DeploymentStatusFailed    DeploymentStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentStatusDeployed || s == DeploymentStatusCancelled || s == DeploymentStatusFailed
}

// DeploymentType enum
type DeploymentType string

const (
	DeploymentTypeNewInstance    DeploymentType = "NEW_INSTANCE"
	DeploymentTypeUpdateInstance DeploymentType = "UPDATE_INSTANCE"
)

// PipelineStatus enum
type PipelineStatus string

const (
	PipelineStatusCreated   PipelineStatus = "CREATED"
	PipelineStatusRunning   PipelineStatus = "RUNNING"
	PipelineStatusSuccess   PipelineStatus = "SUCCESS"
	PipelineStatusFailed    PipelineStatus = "FAILED"
	PipelineStatusSkipped   PipelineStatus = "SKIPPED"
	PipelineStatusCancelled PipelineStatus = "CANCELLED"
)

// IsLive reports whether the external run is still in flight
func (s PipelineStatus) IsLive() bool {
	return s == PipelineStatusCreated || s == PipelineStatusRunning
}

// InstanceHealth is the coarse read-side projection of the pipeline state
type InstanceHealth string

const (
	InstanceHealthHealthy      InstanceHealth = "healthy"
	InstanceHealthProvisioning InstanceHealth = "provisioning"
	InstanceHealthUnhealthy    InstanceHealth = "unhealthy"
	InstanceHealthOffline      InstanceHealth = "offline"
)

// BackendKind enum
type BackendKind string

const (
	BackendKindSQL           BackendKind = "SQL"
	BackendKindDocumentStore BackendKind = "DOCUMENT_STORE"
	BackendKindCache         BackendKind = "CACHE"
	BackendKindObjectStorage BackendKind = "OBJECT_STORAGE"
	BackendKindBlobContainer BackendKind = "BLOB_CONTAINER"
)
