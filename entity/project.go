package entity

import "github.com/google/uuid"

// Project is the ownership boundary and the reconcile unit of work: one
// provisioning stack, one reconcile lease, one orchestrator run at a time.
type Project struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string     `json:"name" binding:"required,min=1,max=128" gorm:"not null"`
	OwnerID   uuid.UUID  `json:"owner_id" binding:"required" gorm:"type:uuid;not null;index"`
	CreatedAt string     `json:"created_at" gorm:"not null"`
	Resources []Resource `json:"resources,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

type ProjectMember struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID uuid.UUID `json:"project_id" binding:"required" gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID `json:"user_id" binding:"required" gorm:"type:uuid;not null;index"`
	Role      string    `json:"role" binding:"required,oneof=owner editor viewer" gorm:"not null"`
}

type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string    `json:"email" binding:"required,email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Role         string    `json:"role" gorm:"not null"`
	CreatedAt    string    `json:"created_at" gorm:"not null"`
}
