package repository

import (
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/infra"
)

type Repository struct {
	ResourceRepo *ResourceRepository
	AuditRepo    *AuditEventRepository
	ProjectRepo  *ProjectRepository
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	repository = &Repository{
		ResourceRepo: NewResourceRepository(infra.Postgres.DB),
		AuditRepo:    NewAuditEventRepository(infra.Postgres.DB),
		ProjectRepo:  NewProjectRepository(infra.Postgres.DB),
	}
	return repository
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func (r *Repository) DB() *gorm.DB {
	return r.ResourceRepo.db
}

// WithTransaction returns a repository view bound to tx, so a whole
// reconcile commit shares one transaction.
func (r *Repository) WithTransaction(tx *gorm.DB) *Repository {
	return &Repository{
		ResourceRepo: NewResourceRepository(tx),
		AuditRepo:    NewAuditEventRepository(tx),
		ProjectRepo:  NewProjectRepository(tx),
	}
}
