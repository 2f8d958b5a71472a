package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
)

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Create(event *entity.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *AuditEventRepository) CreateBatch(events []entity.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.Create(&events).Error
}

// ListByProject returns events newest first; action and userID filters are
// optional.
func (r *AuditEventRepository) ListByProject(projectID uuid.UUID, action string, userID *uuid.UUID) ([]entity.AuditEvent, error) {
	q := r.db.Where("project_id = ?", projectID)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}

	var events []entity.AuditEvent
	err := q.Order("timestamp desc").Find(&events).Error
	return events, err
}
