package controller

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
	"github.com/opencmp/cmp-orchestrator/http/controller/dto"
	"github.com/opencmp/cmp-orchestrator/utils"
)

// CreateEC2 accepts a provision request for an AWS instance. The row is
// written in PENDING_PROVISION and the reconcile consumer does the rest; the
// response never waits on the cloud.
func (ctrl *Controller) CreateEC2(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	var req dto.CreateEC2RequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Failed to bind CreateEC2 request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[EC2] Provision requested for '%s' in region '%s' by user %s", req.Name, req.Region, userID)

	now := time.Now().UTC().Format(time.RFC3339)
	existing, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, req.Name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Error checking resource existence: %v", err)
		utils.JSON500(c, "Error checking resource existence")
		return
	}

	if existing != nil {
		if err := reprovisionConflict(existing, entity.ProviderAWS); err != nil {
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[EC2] Rejected re-provision of '%s': %v", req.Name, err)
			utils.JSON409(c, err.Error())
			return
		}

		prior := existing.State
		if existing.Meta == nil {
			existing.Meta = datatypes.JSONMap{}
		}
		existing.Region = req.Region
		existing.Meta[entity.MetaAMI] = req.AMI
		existing.Meta[entity.MetaInstanceType] = req.InstanceType
		existing.State = entity.StatePendingProvision
		existing.UpdatedAt = now
		if err := ctrl.Repository.ResourceRepo.Save(existing); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Failed to save resource '%s': %v", req.Name, err)
			utils.JSON500(c, "Failed to save resource")
			return
		}

		ctrl.recordRequest(c, userID, existing, entity.IntentProvision, prior)
		ctrl.enqueueReconcile(c, projectID)
		utils.JSON202(c, gin.H{
			"message":  "Provision accepted",
			"resource": existing,
		})
		return
	}

	resource := &entity.Resource{
		ID:           uuid.New(),
		ProjectID:    projectID,
		Provider:     entity.ProviderAWS,
		ResourceType: entity.ResourceTypeVM,
		Name:         req.Name,
		Region:       req.Region,
		State:        entity.StatePendingProvision,
		Meta: datatypes.JSONMap{
			entity.MetaAMI:          req.AMI,
			entity.MetaInstanceType: req.InstanceType,
		},
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ctrl.Repository.ResourceRepo.Create(resource); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Failed to create resource '%s': %v", req.Name, err)
		utils.JSON500(c, "Failed to create resource")
		return
	}

	ctrl.recordRequest(c, userID, resource, entity.IntentProvision, "")
	ctrl.enqueueReconcile(c, projectID)

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[EC2] Accepted provision for resource: %s", resource.ID)
	utils.JSON202(c, gin.H{
		"message":  "Provision accepted",
		"resource": resource,
	})
}

// UpdateEC2 accepts an in-place change of AMI and/or instance type.
func (ctrl *Controller) UpdateEC2(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	var req dto.UpdateEC2RequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Failed to bind UpdateEC2 request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}
	if req.AMI == "" && req.InstanceType == "" {
		utils.JSON400(c, "Nothing to update")
		return
	}

	name := c.Param("name")
	resource, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Resource not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Error loading resource '%s': %v", name, err)
		utils.JSON500(c, "Error loading resource")
		return
	}
	if resource.Provider != entity.ProviderAWS {
		utils.JSON400(c, "Resource is not an AWS instance")
		return
	}

	if err := entity.CanRequest(resource.State, entity.IntentUpdate); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[EC2] Rejected update of '%s' in state %s", name, resource.State)
		utils.JSON409(c, err.Error())
		return
	}

	// Stash the current values so the confirmation event can record the
	// change once the update settles.
	prior := resource.State
	meta := entity.AwsMetaFor(resource)
	if req.AMI != "" {
		resource.Meta[entity.MetaPrevAMI] = meta.AMI()
		resource.Meta[entity.MetaAMI] = req.AMI
	}
	if req.InstanceType != "" {
		resource.Meta[entity.MetaPrevInstanceType] = meta.InstanceType()
		resource.Meta[entity.MetaInstanceType] = req.InstanceType
	}
	resource.State = entity.StatePendingUpdate
	resource.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := ctrl.Repository.ResourceRepo.Save(resource); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[EC2] Failed to save resource '%s': %v", name, err)
		utils.JSON500(c, "Failed to save resource")
		return
	}

	ctrl.recordRequest(c, userID, resource, entity.IntentUpdate, prior)
	ctrl.enqueueReconcile(c, projectID)

	utils.JSON202(c, gin.H{
		"message":  "Update accepted",
		"resource": resource,
	})
}
