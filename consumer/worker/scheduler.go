package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opencmp/cmp-orchestrator/infra"
	"github.com/opencmp/cmp-orchestrator/repository"
)

const projectIDsCacheKey = "cmp:projects:ids"

// Scheduler enqueues a reconcile for every project on a fixed interval, so
// drift and out-of-band changes get caught even when no user mutation
// triggers a run.
type Scheduler struct {
	infra      *infra.Infra
	repository *repository.Repository
	interval   time.Duration
}

func NewScheduler(infraClient *infra.Infra, repo *repository.Repository, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		infra:      infraClient,
		repository: repo,
		interval:   interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.infra.Logger.InfoWithContextf(ctx, "[Scheduler] Enqueueing project reconciles every %s", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				s.infra.Logger.InfoWithContextf(ctx, "[Scheduler] Shutting down...")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	ids, err := s.projectIDs(ctx)
	if err != nil {
		s.infra.Logger.ErrorWithContextf(ctx, err, "[Scheduler] Failed to list projects: %v", err)
		return
	}

	enqueued := 0
	for _, id := range ids {
		if err := s.infra.Produce.ProjectService.PublishReconcileProject(ctx, id.String()); err != nil {
			s.infra.Logger.ErrorWithContextf(ctx, err, "[Scheduler] Failed to enqueue reconcile for project %s: %v", id, err)
			continue
		}
		enqueued++
	}

	s.infra.Logger.InfoWithContextf(ctx, "[Scheduler] Enqueued reconcile for %d/%d projects", enqueued, len(ids))
}

// projectIDs serves the sweep from a short-lived cache so every tick does
// not hit Postgres; a cache failure falls back to the database.
func (s *Scheduler) projectIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.infra.Redis.Get(ctx, projectIDsCacheKey, &ids); err == nil {
		return ids, nil
	}

	ids, err := s.repository.ProjectRepo.ListIDs()
	if err != nil {
		return nil, err
	}
	if err := s.infra.Redis.Set(ctx, projectIDsCacheKey, ids, s.interval); err != nil {
		s.infra.Logger.WarningWithContextf(ctx, "[Scheduler] Failed to cache project ids: %v", err)
	}
	return ids, nil
}
