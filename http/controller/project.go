package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/opencmp/cmp-orchestrator/utils"
)

// TriggerReconcile enqueues an out-of-band reconcile pass for the project.
// Duplicate triggers coalesce on the consumer's per-project lease.
func (ctrl *Controller) TriggerReconcile(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, _, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	if err := ctrl.Infra.Produce.ProjectService.PublishReconcileProject(ctx, projectID.String()); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Project] Failed to publish reconcile message: %v", err)
		utils.JSON500(c, "Failed to enqueue reconcile")
		return
	}

	utils.JSON202(c, gin.H{"message": "Reconcile enqueued"})
}

// DestroyProject enqueues a full stack teardown. Owner only.
func (ctrl *Controller) DestroyProject(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	role, err := ctrl.Repository.ProjectRepo.MemberRole(projectID, userID)
	if err != nil || role != "owner" {
		utils.JSON403(c, "Only the project owner can destroy the project")
		return
	}

	if err := ctrl.Infra.Produce.ProjectService.PublishDestroyProject(ctx, projectID.String(), userID.String()); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Project] Failed to publish destroy message: %v", err)
		utils.JSON500(c, "Failed to enqueue destroy")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Project] Destroy enqueued for project %s by user %s", projectID, userID)
	utils.JSON202(c, gin.H{"message": "Destroy enqueued"})
}
