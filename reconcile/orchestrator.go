package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencmp/cmp-orchestrator/entity"
)

// Store is the persistence surface the orchestrator needs. The repository
// package satisfies it.
type Store interface {
	ListResources(projectID uuid.UUID) ([]entity.Resource, error)
	SaveResource(res *entity.Resource) error
	// Commit persists every updated row and audit event in one transaction.
	Commit(resources []*entity.Resource, events []entity.AuditEvent) error
}

// Applier is the provisioning tool: one apply per project per run, returning
// the flattened stack outputs keyed "{name}-id" / "{name}-ip".
type Applier interface {
	Apply(ctx context.Context, projectID string, resources []*entity.Resource) (map[string]string, error)
}

// Lease serializes reconcile runs per project across consumer replicas.
type Lease interface {
	AcquireLease(ctx context.Context, projectID, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, projectID, holder string) error
}

// ErrLeaseHeld means another run owns the project's lease right now. Callers
// coalesce: the holder's run covers this trigger too.
var ErrLeaseHeld = errors.New("project reconcile lease held by another run")

// Orchestrator drives one full reconcile pass for a project: lease, load,
// pending promotion, single apply, bounded fan-out, one transactional commit.
type Orchestrator struct {
	store      Store
	applier    Applier
	lease      Lease
	reconciler *Reconciler
	logger     Logger
	workers    int
	leaseTTL   time.Duration
}

func NewOrchestrator(store Store, applier Applier, lease Lease, reconciler *Reconciler, logger Logger, workers int, leaseTTL time.Duration) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	return &Orchestrator{
		store:      store,
		applier:    applier,
		lease:      lease,
		reconciler: reconciler,
		logger:     logger,
		workers:    workers,
		leaseTTL:   leaseTTL,
	}
}

// Run executes one reconcile pass. It is idempotent: running it again on a
// stable, matching project commits nothing. When the apply itself fails the
// whole pass aborts and in-progress rows stay put for the next tick.
func (o *Orchestrator) Run(ctx context.Context, projectID uuid.UUID) error {
	holder := uuid.NewString()
	acquired, err := o.lease.AcquireLease(ctx, projectID.String(), holder, o.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease for project %s: %w", projectID, err)
	}
	if !acquired {
		return ErrLeaseHeld
	}
	defer func() {
		// Release with a fresh context so a cancelled run still frees the
		// lease.
		if err := o.lease.ReleaseLease(context.Background(), projectID.String(), holder); err != nil {
			o.logger.WarningWithContextf(ctx, "release lease for project %s: %v", projectID, err)
		}
	}()

	rows, err := o.store.ListResources(projectID)
	if err != nil {
		return fmt.Errorf("load resources for project %s: %w", projectID, err)
	}
	if len(rows) == 0 {
		return nil
	}

	resources := make([]*entity.Resource, 0, len(rows))
	for i := range rows {
		res := &rows[i]
		if res.State.Pending() {
			// Persist the promotion immediately so a crash mid-run leaves a
			// truthful in-progress state, not a stale PENDING_*.
			res.State = res.State.InProgressFor()
			res.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			if err := o.store.SaveResource(res); err != nil {
				return fmt.Errorf("mark resource %s in progress: %w", res.ID, err)
			}
		}
		resources = append(resources, res)
	}

	outputs, err := o.applier.Apply(ctx, projectID.String(), resources)
	if err != nil {
		o.logger.ErrorWithContextf(ctx, err, "provisioning apply failed for project %s", projectID)
		return fmt.Errorf("apply project %s: %w", projectID, err)
	}

	deltas := o.fanOut(ctx, resources, outputs)
	if len(deltas) == 0 {
		o.logger.InfoWithContextf(ctx, "project %s reconciled: no changes", projectID)
		return nil
	}

	updated := make([]*entity.Resource, 0, len(deltas))
	events := make([]entity.AuditEvent, 0, len(deltas))
	for _, d := range deltas {
		updated = append(updated, d.Resource)
		if d.Event != nil {
			events = append(events, *d.Event)
		}
	}
	if err := o.store.Commit(updated, events); err != nil {
		return fmt.Errorf("commit reconcile for project %s: %w", projectID, err)
	}

	o.logger.InfoWithContextf(ctx, "project %s reconciled: %d resources updated, %d audit events", projectID, len(updated), len(events))
	return nil
}

// fanOut reconciles the resources concurrently over a bounded worker pool.
// Every worker gets its own deep snapshot, so a half-mutated resource can
// never leak into the commit; a panic is contained to its resource.
func (o *Orchestrator) fanOut(ctx context.Context, resources []*entity.Resource, outputs map[string]string) []*Delta {
	sem := make(chan struct{}, o.workers)
	results := make([]*Delta, len(resources))

	var wg sync.WaitGroup
	for i, res := range resources {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, snapshot *entity.Resource) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = nil
					o.logger.ErrorWithContextf(ctx, fmt.Errorf("%v", r),
						"reconcile worker panicked for resource %s", snapshot.ID)
				}
			}()
			results[i] = o.reconciler.ReconcileResource(ctx, snapshot, outputs)
		}(i, res.Clone())
	}
	wg.Wait()

	deltas := make([]*Delta, 0, len(resources))
	for _, d := range results {
		if d != nil {
			deltas = append(deltas, d)
		}
	}
	return deltas
}
