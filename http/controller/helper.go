package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
	"github.com/opencmp/cmp-orchestrator/utils"
)

// authorizeProject resolves the caller and their role in the path project.
// Viewers pass only read-only checks. Writes false on failure after
// responding.
func (ctrl *Controller) authorizeProject(c *gin.Context, write bool) (uuid.UUID, uuid.UUID, bool) {
	ctx := c.Request.Context()

	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] user_id not found in context: %v", err)
		utils.JSON401(c, "Unauthorized: user_id not found")
		return uuid.Nil, uuid.Nil, false
	}

	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		utils.JSON400(c, "Invalid project_id format")
		return uuid.Nil, uuid.Nil, false
	}

	role, err := ctrl.Repository.ProjectRepo.MemberRole(projectID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Project not found")
			return uuid.Nil, uuid.Nil, false
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Error resolving project role: %v", err)
		utils.JSON500(c, "Error resolving project membership")
		return uuid.Nil, uuid.Nil, false
	}
	if role == "" {
		utils.JSON403(c, "Not a member of this project")
		return uuid.Nil, uuid.Nil, false
	}
	if write && role == "viewer" {
		utils.JSON403(c, "Viewers cannot modify resources")
		return uuid.Nil, uuid.Nil, false
	}

	return projectID, userID, true
}

// reprovisionConflict reports why an existing row cannot absorb a provision
// request from the given provider's create endpoint: the name may already
// belong to the other provider, or the row may be in a state that rejects
// re-provisioning.
func reprovisionConflict(existing *entity.Resource, provider entity.Provider) error {
	if existing.Provider != provider {
		return fmt.Errorf("%w: resource name already in use by a %s resource", entity.ErrConflict, existing.Provider)
	}
	return entity.CanRequest(existing.State, entity.IntentProvision)
}

// recordRequest appends the user-facing mutation to the audit log. Failures
// are logged only; the mutation itself already succeeded.
func (ctrl *Controller) recordRequest(c *gin.Context, userID uuid.UUID, res *entity.Resource, intent entity.Intent, prior entity.ResourceState) {
	ctx := c.Request.Context()
	projectID := res.ProjectID

	event := &entity.AuditEvent{
		ID:         uuid.New(),
		UserID:     &userID,
		ProjectID:  &projectID,
		Action:     entity.ActionResourceRequested,
		ObjectType: string(res.ResourceType),
		ObjectID:   res.ID.String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Details: datatypes.JSONMap{
			"intent":      string(intent),
			"prior_state": string(prior),
			"new_state":   string(res.State),
			"name":        res.Name,
		},
	}
	if err := ctrl.Repository.AuditRepo.Create(event); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Failed to record audit event: %v", err)
	}
}

// enqueueReconcile asks the consumer to pick the project up. A publish
// failure is not fatal: the periodic scheduler covers the gap.
func (ctrl *Controller) enqueueReconcile(c *gin.Context, projectID uuid.UUID) {
	ctx := c.Request.Context()
	if err := ctrl.Infra.Produce.ProjectService.PublishReconcileProject(ctx, projectID.String()); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Failed to publish reconcile message: %v", err)
	}
}

// requestIntent is the shared non-blocking path for deprovision/start/stop:
// precondition check, PENDING_* write, audit, enqueue.
func (ctrl *Controller) requestIntent(c *gin.Context, intent entity.Intent, accepted string) {
	ctx := c.Request.Context()

	projectID, userID, ok := ctrl.authorizeProject(c, true)
	if !ok {
		return
	}

	name := c.Param("name")
	res, err := ctrl.Repository.ResourceRepo.GetByProjectAndName(projectID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Resource not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Error loading resource %s: %v", name, err)
		utils.JSON500(c, "Error loading resource")
		return
	}

	if err := entity.CanRequest(res.State, intent); err != nil {
		if intent == entity.IntentDeprovision && res.State == entity.StateTerminated {
			// Deleting an already-terminated resource is a client error, not
			// a transient conflict.
			utils.JSON400(c, err.Error())
			return
		}
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Resource] Rejected %s for %s in state %s", intent, name, res.State)
		utils.JSON409(c, err.Error())
		return
	}

	prior := res.State
	res.State = intent.PendingFor()
	res.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := ctrl.Repository.ResourceRepo.Save(res); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Resource] Failed to save resource %s: %v", name, err)
		utils.JSON500(c, "Failed to update resource")
		return
	}

	ctrl.recordRequest(c, userID, res, intent, prior)
	ctrl.enqueueReconcile(c, projectID)

	utils.JSON202(c, gin.H{
		"message":  accepted,
		"resource": res,
	})
}
