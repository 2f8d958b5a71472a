package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opencmp/cmp-orchestrator/utils"
)

// ListAuditEvents returns the project's audit trail newest first. Optional
// query filters: action, user_id.
func (ctrl *Controller) ListAuditEvents(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, _, ok := ctrl.authorizeProject(c, false)
	if !ok {
		return
	}

	action := c.Query("action")

	var userFilter *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			utils.JSON400(c, "Invalid user_id filter")
			return
		}
		userFilter = &parsed
	}

	events, err := ctrl.Repository.AuditRepo.ListByProject(projectID, action, userFilter)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Audit] Failed to list audit events: %v", err)
		utils.JSON500(c, "Failed to list audit events")
		return
	}

	utils.JSON200(c, gin.H{
		"events": events,
		"count":  len(events),
	})
}
