package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
	"github.com/opencmp/cmp-orchestrator/utils"
)

func (ctrl *Controller) ListResources(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, _, ok := ctrl.authorizeProject(c, false)
	if !ok {
		return
	}

	resources, err := ctrl.Repository.ResourceRepo.ListByProject(projectID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Failed to list resources: %v", err)
		utils.JSON500(c, "Failed to list resources")
		return
	}

	utils.JSON200(c, gin.H{
		"resources": resources,
		"count":     len(resources),
	})
}

func (ctrl *Controller) GetResource(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, _, ok := ctrl.authorizeProject(c, false)
	if !ok {
		return
	}

	name := c.Param("name")
	resource, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Resource not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Error loading resource '%s': %v", name, err)
		utils.JSON500(c, "Error loading resource")
		return
	}

	utils.JSON200(c, gin.H{"resource": resource})
}

// DeprovisionResource requests a teardown. The row survives as TERMINATED
// once the consumer confirms the delete.
func (ctrl *Controller) DeprovisionResource(c *gin.Context) {
	ctrl.requestIntent(c, entity.IntentDeprovision, "Deprovision accepted")
}

func (ctrl *Controller) StartResource(c *gin.Context) {
	ctrl.requestIntent(c, entity.IntentStart, "Start accepted")
}

func (ctrl *Controller) StopResource(c *gin.Context) {
	ctrl.requestIntent(c, entity.IntentStop, "Stop accepted")
}
