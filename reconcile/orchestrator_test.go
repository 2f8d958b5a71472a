package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/opencmp/cmp-orchestrator/entity"
)

type fakeStore struct {
	resources []entity.Resource

	saved           []entity.Resource
	commitCalls     int
	committedRows   []*entity.Resource
	committedEvents []entity.AuditEvent
}

func (s *fakeStore) ListResources(projectID uuid.UUID) ([]entity.Resource, error) {
	out := make([]entity.Resource, len(s.resources))
	copy(out, s.resources)
	return out, nil
}

func (s *fakeStore) SaveResource(res *entity.Resource) error {
	s.saved = append(s.saved, *res)
	return nil
}

func (s *fakeStore) Commit(resources []*entity.Resource, events []entity.AuditEvent) error {
	s.commitCalls++
	s.committedRows = append(s.committedRows, resources...)
	s.committedEvents = append(s.committedEvents, events...)
	return nil
}

type fakeApplier struct {
	outputs map[string]string
	err     error

	calls         int
	statesAtApply []entity.ResourceState
}

func (a *fakeApplier) Apply(ctx context.Context, projectID string, resources []*entity.Resource) (map[string]string, error) {
	a.calls++
	a.statesAtApply = a.statesAtApply[:0]
	for _, r := range resources {
		a.statesAtApply = append(a.statesAtApply, r.State)
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.outputs, nil
}

type fakeLease struct {
	heldElsewhere bool
	acquired      int
	released      int
}

func (l *fakeLease) AcquireLease(ctx context.Context, projectID, holder string, ttl time.Duration) (bool, error) {
	if l.heldElsewhere {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLease) ReleaseLease(ctx context.Context, projectID, holder string) error {
	l.released++
	return nil
}

func newTestOrchestrator(store *fakeStore, applier *fakeApplier, lease *fakeLease, adapter VMAdapter) *Orchestrator {
	rc := newTestReconciler(adapter)
	return NewOrchestrator(store, applier, lease, rc, nopLogger{}, 2, time.Minute)
}

func TestRunLeaseHeldCoalesces(t *testing.T) {
	store := &fakeStore{resources: []entity.Resource{*awsResource(entity.StatePendingProvision, nil)}}
	applier := &fakeApplier{}
	lease := &fakeLease{heldElsewhere: true}

	o := newTestOrchestrator(store, applier, lease, &fakeAdapter{})
	err := o.Run(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Zero(t, applier.calls)
	assert.Zero(t, store.commitCalls)
}

func TestRunPromotesPendingBeforeApply(t *testing.T) {
	res := awsResource(entity.StatePendingStart, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	store := &fakeStore{resources: []entity.Resource{*res}}
	applier := &fakeApplier{outputs: map[string]string{"web-1-id": "i-0abc"}}
	lease := &fakeLease{}
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning})}

	o := newTestOrchestrator(store, applier, lease, adapter)
	require.NoError(t, o.Run(context.Background(), res.ProjectID))

	// PENDING_START became STARTING and was persisted before the apply ran.
	require.Len(t, store.saved, 1)
	assert.Equal(t, entity.StateStarting, store.saved[0].State)
	assert.Equal(t, []entity.ResourceState{entity.StateStarting}, applier.statesAtApply)

	// The observed running instance settles the row.
	require.Equal(t, 1, store.commitCalls)
	require.Len(t, store.committedRows, 1)
	assert.Equal(t, entity.StateRunning, store.committedRows[0].State)
	require.Len(t, store.committedEvents, 1)
	assert.Equal(t, entity.ActionStartSuccess, store.committedEvents[0].Action)

	assert.Equal(t, 1, lease.acquired)
	assert.Equal(t, 1, lease.released)
}

func TestRunApplyFailureAbortsWholePass(t *testing.T) {
	res := awsResource(entity.StatePendingProvision, nil)
	store := &fakeStore{resources: []entity.Resource{*res}}
	applier := &fakeApplier{err: errors.New("pulumi up failed")}
	lease := &fakeLease{}

	o := newTestOrchestrator(store, applier, lease, &fakeAdapter{})
	err := o.Run(context.Background(), res.ProjectID)

	require.Error(t, err)
	assert.Zero(t, store.commitCalls)
	// Rows stay in their in-progress state for the next tick.
	require.Len(t, store.saved, 1)
	assert.Equal(t, entity.StateProvisioning, store.saved[0].State)
	// The lease is released even on failure.
	assert.Equal(t, 1, lease.released)
}

func TestRunStableProjectCommitsNothing(t *testing.T) {
	res := awsResource(entity.StateRunning, datatypes.JSONMap{
		entity.MetaAWSID:    "i-0abc",
		entity.MetaPublicIP: "203.0.113.9",
	})
	store := &fakeStore{resources: []entity.Resource{*res}}
	applier := &fakeApplier{outputs: map[string]string{"web-1-id": "i-0abc", "web-1-ip": "203.0.113.9"}}
	lease := &fakeLease{}
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning, PublicIP: "203.0.113.9"})}

	o := newTestOrchestrator(store, applier, lease, adapter)
	require.NoError(t, o.Run(context.Background(), res.ProjectID))

	assert.Equal(t, 1, applier.calls)
	assert.Zero(t, store.commitCalls)
	assert.Empty(t, store.saved)
}

func TestRunFansOutAndCommitsOnce(t *testing.T) {
	projectID := uuid.New()
	names := []string{"web-1", "web-2", "web-3"}

	var rows []entity.Resource
	outputs := map[string]string{}
	for i, name := range names {
		r := awsResource(entity.StatePendingProvision, nil)
		r.ProjectID = projectID
		r.Name = name
		rows = append(rows, *r)
		outputs[name+"-id"] = "i-0abc" + string(rune('0'+i))
	}

	store := &fakeStore{resources: rows}
	applier := &fakeApplier{outputs: outputs}
	lease := &fakeLease{}
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning})}

	o := newTestOrchestrator(store, applier, lease, adapter)
	require.NoError(t, o.Run(context.Background(), projectID))

	assert.Equal(t, 1, applier.calls)
	require.Equal(t, 1, store.commitCalls)
	assert.Len(t, store.committedRows, 3)
	assert.Len(t, store.committedEvents, 3)
	for _, row := range store.committedRows {
		assert.Equal(t, entity.StateRunning, row.State)
	}
}

type mappedAdapter struct {
	results map[string]LiveVMResult
}

func (m *mappedAdapter) FetchLiveInfo(ctx context.Context, region, nativeID string) LiveVMResult {
	return m.results[nativeID]
}

func (m *mappedAdapter) Start(ctx context.Context, region, nativeID string) error { return nil }
func (m *mappedAdapter) Stop(ctx context.Context, region, nativeID string) error  { return nil }

func TestRunContainsPerResourceFailures(t *testing.T) {
	projectID := uuid.New()

	flaky := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-flaky"})
	flaky.ProjectID = projectID
	gone := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-gone"})
	gone.ProjectID = projectID
	gone.Name = "web-2"

	store := &fakeStore{resources: []entity.Resource{*flaky, *gone}}
	applier := &fakeApplier{outputs: map[string]string{}}
	lease := &fakeLease{}
	adapter := &mappedAdapter{results: map[string]LiveVMResult{
		"i-flaky": Transient(errors.New("rate limited")),
		"i-gone":  NotFound(),
	}}

	o := newTestOrchestrator(store, applier, lease, adapter)
	require.NoError(t, o.Run(context.Background(), projectID))

	// The flaky resource is held for the next run; the drifted one still
	// gets its delta committed in the same pass.
	require.Equal(t, 1, store.commitCalls)
	require.Len(t, store.committedRows, 1)
	assert.Equal(t, "web-2", store.committedRows[0].Name)
	assert.Equal(t, entity.StateError, store.committedRows[0].State)
	require.Len(t, store.committedEvents, 1)
	assert.Equal(t, entity.ActionDriftDeleted, store.committedEvents[0].Action)
}

func TestRunEmptyProjectIsNoOp(t *testing.T) {
	store := &fakeStore{}
	applier := &fakeApplier{}
	lease := &fakeLease{}

	o := newTestOrchestrator(store, applier, lease, &fakeAdapter{})
	require.NoError(t, o.Run(context.Background(), uuid.New()))

	assert.Zero(t, applier.calls)
	assert.Zero(t, store.commitCalls)
}
