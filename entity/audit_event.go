package entity

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent is an append-only record of one state transition or
// reconciliation action. Rows are never updated or deleted. UserID is nil
// for system-initiated actions.
type AuditEvent struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     *uuid.UUID        `json:"user_id,omitempty" gorm:"type:uuid;index"`
	ProjectID  *uuid.UUID        `json:"project_id,omitempty" gorm:"type:uuid;index"`
	Action     string            `json:"action" gorm:"size:64;not null;index"`
	ObjectType string            `json:"object_type" gorm:"size:32;not null"`
	ObjectID   string            `json:"object_id" gorm:"not null"`
	Timestamp  string            `json:"timestamp" gorm:"not null;index"`
	Details    datatypes.JSONMap `json:"details" gorm:"not null"`
}

// Reconciliation audit actions. Details always carry prior_state/new_state
// plus any provider ids and IPs touched.
const (
	ActionProvisionSuccess   = "provision_success_confirmed"
	ActionProvisionFailed    = "provision_failed"
	ActionUpdateSuccessRun   = "update_success_confirmed_running"
	ActionUpdateSuccessStop  = "update_success_confirmed_stopped"
	ActionUpdateFailed       = "update_failed"
	ActionDeprovisionSuccess = "deprovision_success_confirmed"
	ActionDeprovisionFailed  = "deprovision_failed"
	ActionStartSuccess       = "start_success_confirmed"
	ActionStartFailed        = "start_failed"
	ActionStopSuccess        = "stop_success_confirmed"
	ActionStopFailed         = "stop_failed"
	ActionAutoHealStart      = "reconcile_auto_heal_start_triggered"
	ActionAutoHealStop       = "reconcile_auto_heal_stop_triggered"
	ActionDriftDeleted       = "drift_deleted"
	ActionStateChanged       = "reconcile_state_changed"
	ActionProjectDestroyed   = "project_destroyed"
)

// API-layer audit actions.
const (
	ActionResourceRequested = "resource_mutation_requested"
)
