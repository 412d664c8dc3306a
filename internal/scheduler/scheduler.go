package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/hostara/hostara/api/internal/database"
	"github.com/hostara/hostara/api/internal/deploy"
	"github.com/hostara/hostara/api/internal/models"
)

// Scheduler periodically scans for Pending deployments and triggers their
// pipelines, subject to the per-project admission rule: a new-instance
// deployment may not start while the instance's CI project already has a
// live pipeline.
type Scheduler struct {
	gateway  deploy.Gateway
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func New(gateway deploy.Gateway, interval time.Duration) *Scheduler {
	return &Scheduler{
		gateway:  gateway,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.ProcessPending(context.Background()); err != nil {
					log.Printf("Deployment scan failed: %v", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// ProcessPending runs one scan over Pending deployments, oldest first. When
// a new-instance deployment is blocked by a busy CI project the whole scan
// stops rather than skipping ahead, so later deployments cannot jump the
// queue and starve it.
func (s *Scheduler) ProcessPending(ctx context.Context) error {
	db := database.GetDatabase()

	var pending []models.Deployment
	if err := db.Preload("Instance").
		Where("status = ?", models.DeploymentStatusPending).
		Order("updatedAt ASC").
		Find(&pending).Error; err != nil {
		return err
	}

	for _, deployment := range pending {
		if deployment.Type == models.DeploymentTypeNewInstance {
			busy, err := projectBusy(deployment.Instance.CIProjectID)
			if err != nil {
				return err
			}
			if busy {
				break
			}
		}

		if err := deploy.TriggerPipeline(ctx, s.gateway, deployment.ID); err != nil {
			if errors.Is(err, deploy.ErrNotPending) {
				continue
			}
			log.Printf("Failed to trigger deployment %s: %v", deployment.ID, err)
		}
	}
	return nil
}

// projectBusy reports whether the CI project has a pipeline that is still
// live (Created or Running) on any instance sharing it
func projectBusy(ciProjectID *string) (bool, error) {
	if ciProjectID == nil {
		return false, nil
	}
	db := database.GetDatabase()

	var count int64
	err := db.Model(&models.Pipeline{}).
		Joins("JOIN Deployment ON Deployment.id = Pipeline.deploymentId").
		Joins("JOIN Instance ON Instance.id = Deployment.instanceId").
		Where("Instance.ciProjectId = ?", *ciProjectID).
		Where("Pipeline.status IN ?", []models.PipelineStatus{
			models.PipelineStatusCreated,
			models.PipelineStatusRunning,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
