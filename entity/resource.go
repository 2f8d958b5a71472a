package entity

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

type ResourceType string

const (
	ResourceTypeVM ResourceType = "vm"
)

// Resource is one managed cloud VM. State carries the last reconciled or
// intended lifecycle value; Meta holds provider-native identifiers and
// creation parameters. (project_id, name) is unique.
type Resource struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `json:"project_id" binding:"required" gorm:"type:uuid;not null;index;uniqueIndex:uq_resources_project_name"`
	Provider     Provider          `json:"provider" binding:"required,oneof=aws azure" gorm:"not null"`
	ResourceType ResourceType      `json:"resource_type" binding:"required" gorm:"not null"`
	Name         string            `json:"name" binding:"required,min=1,max=63" gorm:"not null;uniqueIndex:uq_resources_project_name"`
	Region       string            `json:"region" binding:"required,max=32" gorm:"not null"`
	State        ResourceState     `json:"state" gorm:"not null;index"`
	Meta         datatypes.JSONMap `json:"meta" gorm:"not null"`
	CreatedBy    uuid.UUID         `json:"created_by" gorm:"type:uuid;index"`
	CreatedAt    string            `json:"created_at" gorm:"not null"`
	UpdatedAt    string            `json:"updated_at" gorm:"not null"`
}

// Clone returns a deep copy safe to hand to a reconcile worker.
func (r *Resource) Clone() *Resource {
	cp := *r
	cp.Meta = make(datatypes.JSONMap, len(r.Meta))
	for k, v := range r.Meta {
		cp.Meta[k] = v
	}
	return &cp
}
