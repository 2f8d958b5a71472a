package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
)

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) Create(resource *entity.Resource) error {
	return r.db.Create(resource).Error
}

func (r *ResourceRepository) Save(resource *entity.Resource) error {
	return r.db.Save(resource).Error
}

func (r *ResourceRepository) GetByID(id uuid.UUID) (*entity.Resource, error) {
	var resource entity.Resource
	if err := r.db.First(&resource, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *ResourceRepository) GetByProjectAndName(projectID uuid.UUID, name string) (*entity.Resource, error) {
	var resource entity.Resource
	err := r.db.First(&resource, "project_id = ? AND name = ?", projectID, name).Error
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *ResourceRepository) ListByProject(projectID uuid.UUID) ([]entity.Resource, error) {
	var resources []entity.Resource
	err := r.db.Where("project_id = ?", projectID).Order("name asc").Find(&resources).Error
	return resources, err
}

func (r *ResourceRepository) ListByProjectAndProvider(projectID uuid.UUID, provider entity.Provider) ([]entity.Resource, error) {
	var resources []entity.Resource
	err := r.db.
		Where("project_id = ? AND provider = ?", projectID, provider).
		Order("name asc").
		Find(&resources).Error
	return resources, err
}

func (r *ResourceRepository) ExistsByProjectAndName(projectID uuid.UUID, name string) (bool, error) {
	var count int64
	err := r.db.Model(&entity.Resource{}).
		Where("project_id = ? AND name = ?", projectID, name).
		Count(&count).Error
	return count > 0, err
}

// UpdateStateAndMeta persists only the reconciliation-owned columns.
func (r *ResourceRepository) UpdateStateAndMeta(resource *entity.Resource) error {
	return r.db.Model(&entity.Resource{}).
		Where("id = ?", resource.ID).
		Updates(map[string]interface{}{
			"state":      resource.State,
			"meta":       resource.Meta,
			"updated_at": resource.UpdatedAt,
		}).Error
}
