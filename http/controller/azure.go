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

// CreateAzureVM accepts a provision request for an Azure virtual machine and
// its surrounding network chain. Non-blocking like the AWS path.
func (ctrl *Controller) CreateAzureVM(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	var req dto.CreateAzureVMRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Failed to bind CreateAzureVM request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[AzureVM] Provision requested for '%s' in '%s' by user %s", req.Name, req.Location, userID)

	meta := azureMetaFromRequest(&req)
	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, req.Name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Error checking resource existence: %v", err)
		utils.JSON500(c, "Error checking resource existence")
		return
	}

	if existing != nil {
		if err := reprovisionConflict(existing, entity.ProviderAzure); err != nil {
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[AzureVM] Rejected re-provision of '%s': %v", req.Name, err)
			utils.JSON409(c, err.Error())
			return
		}

		prior := existing.State
		if existing.Meta == nil {
			existing.Meta = datatypes.JSONMap{}
		}
		for k, v := range meta {
			existing.Meta[k] = v
		}
		existing.Region = req.Location
		existing.State = entity.StatePendingProvision
		existing.UpdatedAt = now
		if err := ctrl.Repository.ResourceRepo.Save(existing); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Failed to save resource '%s': %v", req.Name, err)
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
		Provider:     entity.ProviderAzure,
		ResourceType: entity.ResourceTypeVM,
		Name:         req.Name,
		Region:       req.Location,
		State:        entity.StatePendingProvision,
		Meta:         meta,
		CreatedBy:    userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ctrl.Repository.ResourceRepo.Create(resource); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Failed to create resource '%s': %v", req.Name, err)
		utils.JSON500(c, "Failed to create resource")
		return
	}

	ctrl.recordRequest(c, userID, resource, entity.IntentProvision, "")
	ctrl.enqueueReconcile(c, projectID)

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[AzureVM] Accepted provision for resource: %s", resource.ID)
	utils.JSON202(c, gin.H{
		"message":  "Provision accepted",
		"resource": resource,
	})
}

// UpdateAzureVM accepts a VM size change.
func (ctrl *Controller) UpdateAzureVM(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	var req dto.UpdateAzureVMRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Failed to bind UpdateAzureVM request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	name := c.Param("name")
	resource, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Resource not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Error loading resource '%s': %v", name, err)
		utils.JSON500(c, "Error loading resource")
		return
	}
	if resource.Provider != entity.ProviderAzure {
		utils.JSON400(c, "Resource is not an Azure virtual machine")
		return
	}

	if err := entity.CanRequest(resource.State, entity.IntentUpdate); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[AzureVM] Rejected update of '%s' in state %s", name, resource.State)
		utils.JSON409(c, err.Error())
		return
	}

	// Stash the current size so the confirmation event can record the
	// change once the update settles.
	prior := resource.State
	meta := entity.AzureMetaFor(resource)
	resource.Meta[entity.MetaPrevVMSize] = meta.VMSize()
	resource.Meta[entity.MetaVMSize] = req.VMSize
	resource.State = entity.StatePendingUpdate
	resource.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := ctrl.Repository.ResourceRepo.Save(resource); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[AzureVM] Failed to save resource '%s': %v", name, err)
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

// azureMetaFromRequest builds the meta bag the provisioning program reads,
// filling the network defaults the request may omit.
func azureMetaFromRequest(req *dto.CreateAzureVMRequestDTO) datatypes.JSONMap {
	vnetPrefix := req.VNetAddressPrefix
	if vnetPrefix == "" {
		vnetPrefix = "10.0.0.0/16"
	}
	subnetPrefix := req.SubnetPrefix
	if subnetPrefix == "" {
		subnetPrefix = "10.0.1.0/24"
	}
	pipMethod := req.PublicIPAllocationMethod
	if pipMethod == "" {
		pipMethod = "Static"
	}

	return datatypes.JSONMap{
		entity.MetaLocation:      req.Location,
		entity.MetaVMSize:        req.VMSize,
		entity.MetaAdminUsername: req.AdminUsername,
		entity.MetaAdminPassword: req.AdminPassword,
		entity.MetaImageReference: map[string]interface{}{
			"publisher": req.ImageReference.Publisher,
			"offer":     req.ImageReference.Offer,
			"sku":       req.ImageReference.Sku,
			"version":   req.ImageReference.Version,
		},
		entity.MetaVNetPrefix:     vnetPrefix,
		entity.MetaSubnetPrefix:   subnetPrefix,
		entity.MetaPublicIPMethod: pipMethod,
	}
}
