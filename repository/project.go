package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(id uuid.UUID) (*entity.Project, error) {
	var project entity.Project
	if err := r.db.First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ListIDs returns every project id; the scheduler enqueues a reconcile for
// each on every tick.
func (r *ProjectRepository) ListIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&entity.Project{}).Pluck("id", &ids).Error
	return ids, err
}

// MemberRole returns the caller's role in the project, the owner counting
// as "owner". Empty string means not a member.
func (r *ProjectRepository) MemberRole(projectID, userID uuid.UUID) (string, error) {
	project, err := r.GetByID(projectID)
	if err != nil {
		return "", err
	}
	if project.OwnerID == userID {
		return "owner", nil
	}

	var member entity.ProjectMember
	err = r.db.First(&member, "project_id = ? AND user_id = ?", projectID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return member.Role, nil
}
