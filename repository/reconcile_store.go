package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencmp/cmp-orchestrator/entity"
)

// ReconcileStore adapts the repository to the storage surface the reconcile
// orchestrator works against.
type ReconcileStore struct {
	repo *Repository
}

func NewReconcileStore(repo *Repository) *ReconcileStore {
	return &ReconcileStore{repo: repo}
}

func (s *ReconcileStore) ListResources(projectID uuid.UUID) ([]entity.Resource, error) {
	return s.repo.ResourceRepo.ListByProject(projectID)
}

func (s *ReconcileStore) SaveResource(res *entity.Resource) error {
	return s.repo.ResourceRepo.UpdateStateAndMeta(res)
}

// Commit writes every reconciled row and audit event in a single
// transaction, so observers never see a state change without its event.
func (s *ReconcileStore) Commit(resources []*entity.Resource, events []entity.AuditEvent) error {
	return s.repo.DB().Transaction(func(tx *gorm.DB) error {
		view := s.repo.WithTransaction(tx)
		for _, res := range resources {
			if err := view.ResourceRepo.UpdateStateAndMeta(res); err != nil {
				return err
			}
		}
		return view.AuditRepo.CreateBatch(events)
	})
}
