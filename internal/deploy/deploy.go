package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hostara/hostara/api/internal/ci"
	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/hostara/hostara/api/internal/utils"
	"gorm.io/gorm"
)

var (
	// ErrNotPending is returned when triggering a deployment that has
	// already left the Pending state
	ErrNotPending = errors.New("deployment is not pending")
	// ErrNoPipeline is returned when cancelling a deployment that was
	// never triggered
	ErrNoPipeline = errors.New("deployment has no pipeline")
	// ErrNoCIProject is returned when the instance has no CI project
	// configured; fatal, never retried
	ErrNoCIProject = errors.New("instance has no CI project configured")
)

// Gateway is the outbound side of the external CI system
type Gateway interface {
	Trigger(ctx context.Context, req ci.TriggerRequest) (int, error)
	Abort(ctx context.Context, req ci.TriggerRequest, runID int) error
}

// externalStatusMap translates the CI system's status names to the
// internal pipeline enum
var externalStatusMap = map[string]models.PipelineStatus{
	"created":  models.PipelineStatusCreated,
	"pending":  models.PipelineStatusCreated,
	"running":  models.PipelineStatusRunning,
	"success":  models.PipelineStatusSuccess,
	"failed":   models.PipelineStatusFailed,
	"skipped":  models.PipelineStatusSkipped,
	"canceled": models.PipelineStatusCancelled,
}

// MapExternalStatus maps an external status name to the internal enum
func MapExternalStatus(name string) (models.PipelineStatus, bool) {
	status, ok := externalStatusMap[strings.ToLower(name)]
	return status, ok
}

// CreateDeployment records a new deployment request for an instance
func CreateDeployment(instanceID string, deploymentType models.DeploymentType, overrides models.JSON, triggeredBy *string) (*models.Deployment, error) {
	db := database.GetDatabase()

	var instance models.Instance
	if err := db.Where("id = ? AND deletedAt IS NULL", instanceID).First(&instance).Error; err != nil {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}

	deployment := models.Deployment{
		ID:          utils.GenerateShortID(),
		InstanceID:  instanceID,
		Type:        deploymentType,
		Status:      models.DeploymentStatusPending,
		Overrides:   overrides,
		TriggeredBy: triggeredBy,
	}
	if err := db.Create(&deployment).Error; err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	return &deployment, nil
}

// TriggerPipeline starts the external CI run for a Pending deployment, moves
// it to Triggered and records the external run id on a new Pipeline row.
func TriggerPipeline(ctx context.Context, gw Gateway, deploymentID string) error {
	db := database.GetDatabase()

	var deployment models.Deployment
	if err := db.Preload("Instance.CIProject").Preload("Pipeline").
		Where("id = ?", deploymentID).
		First(&deployment).Error; err != nil {
		return fmt.Errorf("deployment not found: %s", deploymentID)
	}

	if deployment.Status != models.DeploymentStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, deploymentID, deployment.Status)
	}

	project := deployment.Instance.CIProject
	if project == nil {
		return ErrNoCIProject
	}

	runID, err := gw.Trigger(ctx, ci.TriggerRequest{
		BaseURL:   project.BaseURL,
		ProjectID: project.ProjectID,
		Token:     project.TriggerToken,
		Ref:       project.Ref,
		Variables: triggerVariables(&deployment),
	})
	if err != nil {
		return fmt.Errorf("failed to trigger pipeline for deployment %s: %w", deploymentID, err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		pipeline := models.Pipeline{
			ID:           utils.GenerateShortID(),
			DeploymentID: deployment.ID,
			RunID:        runID,
			Status:       models.PipelineStatusCreated,
		}
		if err := tx.Create(&pipeline).Error; err != nil {
			return fmt.Errorf("failed to create pipeline record: %w", err)
		}
		return tx.Model(&models.Deployment{}).Where("id = ?", deployment.ID).
			Update("status", models.DeploymentStatusTriggered).Error
	})
}

// triggerVariables builds the flat variable map sent with the trigger call:
// instance hostnames and theme payload first, tenant-specific overrides last
// so they win.
func triggerVariables(deployment *models.Deployment) map[string]string {
	vars := map[string]string{
		"INSTANCE_NAME":   deployment.Instance.Name,
		"DEPLOYMENT_ID":   deployment.ID,
		"DEPLOYMENT_TYPE": string(deployment.Type),
	}

	if hostnames := deployment.Instance.HostnameList(); len(hostnames) > 0 {
		vars["INSTANCE_HOSTNAMES"] = strings.Join(hostnames, ",")
	}
	if deployment.Instance.Theme != nil {
		if data, err := json.Marshal(json.RawMessage(deployment.Instance.Theme)); err == nil {
			vars["INSTANCE_THEME"] = string(data)
		}
	}
	for key, value := range deployment.OverrideVariables() {
		vars[key] = value
	}
	return vars
}

// UpdateStatus ingests an externally reported status for a deployment's
// pipeline. It persists only when the mapped status actually changed, so
// duplicate and out-of-order webhook deliveries are harmless. A Failed
// pipeline force-fails the owning deployment; Success and Cancelled do not
// cascade.
func UpdateStatus(deploymentID string, runID int, externalName string) error {
	db := database.GetDatabase()

	mapped, ok := MapExternalStatus(externalName)
	if !ok {
		log.Printf("Ignoring unknown pipeline status %q for deployment %s", externalName, deploymentID)
		return nil
	}

	var pipeline models.Pipeline
	if err := db.Where("deploymentId = ?", deploymentID).First(&pipeline).Error; err != nil {
		return fmt.Errorf("pipeline not found for deployment %s", deploymentID)
	}

	updates := map[string]interface{}{}
	if pipeline.RunID != runID && runID != 0 {
		updates["runId"] = runID
	}
	if pipeline.Status != mapped {
		updates["status"] = mapped
	}
	if len(updates) == 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Pipeline{}).Where("id = ?", pipeline.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update pipeline: %w", err)
		}

		if mapped == models.PipelineStatusFailed && pipeline.Status != mapped {
			if err := tx.Model(&models.Deployment{}).Where("id = ?", deploymentID).
				Updates(map[string]interface{}{
					"status":      models.DeploymentStatusFailed,
					"completedAt": time.Now(),
				}).Error; err != nil {
				return fmt.Errorf("failed to fail deployment: %w", err)
			}
		}
		return nil
	})
}

// EffectiveStatus projects the instance's latest pipeline state onto the
// coarse display status. The first observed Success flips the instance's
// one-way successfully-provisioned marker.
func EffectiveStatus(instanceID string) (models.InstanceHealth, error) {
	db := database.GetDatabase()

	var instance models.Instance
	if err := db.Where("id = ?", instanceID).First(&instance).Error; err != nil {
		return "", fmt.Errorf("instance not found: %s", instanceID)
	}

	// The newest deployment may still be Pending with no pipeline; the
	// display status reflects the most recent deployment that actually ran,
	// so the projection filters to deployments with a pipeline.
	var deployment models.Deployment
	err := db.Preload("Pipeline").
		Joins("JOIN Pipeline ON Pipeline.deploymentId = Deployment.id").
		Where("Deployment.instanceId = ?", instanceID).
		Order("Deployment.createdAt DESC").
		First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.InstanceHealthOffline, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load deployment for %s: %w", instanceID, err)
	}
	if deployment.Pipeline == nil {
		return models.InstanceHealthOffline, nil
	}

	switch deployment.Pipeline.Status {
	case models.PipelineStatusSuccess:
		if !instance.SuccessfullyProvisioned {
			if err := db.Model(&instance).Update("successfullyProvisioned", true).Error; err != nil {
				return "", fmt.Errorf("failed to mark instance provisioned: %w", err)
			}
		}
		return models.InstanceHealthHealthy, nil
	case models.PipelineStatusCreated, models.PipelineStatusRunning:
		return models.InstanceHealthProvisioning, nil
	default:
		return models.InstanceHealthUnhealthy, nil
	}
}

// CancelDeployment sends the abort trigger for a deployment's pipeline and
// optimistically force-sets the deployment to Cancelled immediately; it
// does not wait for the external system's own cancellation webhook.
func CancelDeployment(ctx context.Context, gw Gateway, deploymentID string) error {
	db := database.GetDatabase()

	var deployment models.Deployment
	if err := db.Preload("Instance.CIProject").Preload("Pipeline").
		Where("id = ?", deploymentID).
		First(&deployment).Error; err != nil {
		return fmt.Errorf("deployment not found: %s", deploymentID)
	}
	if deployment.Pipeline == nil {
		return ErrNoPipeline
	}

	if project := deployment.Instance.CIProject; project != nil {
		err := gw.Abort(ctx, ci.TriggerRequest{
			BaseURL:   project.BaseURL,
			ProjectID: project.ProjectID,
			Token:     project.TriggerToken,
			Ref:       project.Ref,
		}, deployment.Pipeline.RunID)
		if err != nil {
			// fire-and-forget: local state is authoritative
			log.Printf("Abort call for deployment %s failed: %v", deploymentID, err)
		}
	}

	return db.Model(&models.Deployment{}).Where("id = ?", deploymentID).
		Updates(map[string]interface{}{
			"status":      models.DeploymentStatusCancelled,
			"completedAt": time.Now(),
		}).Error
}
