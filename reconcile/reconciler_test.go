package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/opencmp/cmp-orchestrator/entity"
)

type nopLogger struct{}

func (nopLogger) InfoWithContextf(ctx context.Context, format string, args ...interface{})    {}
func (nopLogger) WarningWithContextf(ctx context.Context, format string, args ...interface{}) {}
func (nopLogger) ErrorWithContextf(ctx context.Context, err error, format string, args ...interface{}) {
}

type fakeAdapter struct {
	result   LiveVMResult
	started  []string
	stopped  []string
	startErr error
	stopErr  error
}

func (f *fakeAdapter) FetchLiveInfo(ctx context.Context, region, nativeID string) LiveVMResult {
	return f.result
}

func (f *fakeAdapter) Start(ctx context.Context, region, nativeID string) error {
	f.started = append(f.started, nativeID)
	return f.startErr
}

func (f *fakeAdapter) Stop(ctx context.Context, region, nativeID string) error {
	f.stopped = append(f.stopped, nativeID)
	return f.stopErr
}

func newTestReconciler(adapter VMAdapter) *Reconciler {
	return NewReconciler(map[entity.Provider]VMAdapter{
		entity.ProviderAWS:   adapter,
		entity.ProviderAzure: adapter,
	}, nopLogger{})
}

func awsResource(state entity.ResourceState, meta datatypes.JSONMap) *entity.Resource {
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	return &entity.Resource{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Provider:     entity.ProviderAWS,
		ResourceType: entity.ResourceTypeVM,
		Name:         "web-1",
		Region:       "us-east-1",
		State:        state,
		Meta:         meta,
	}
}

func TestReconcileProvisionConfirmed(t *testing.T) {
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning, PublicIP: "203.0.113.9"})}
	rc := newTestReconciler(adapter)

	res := awsResource(entity.StateProvisioning, nil)
	outputs := map[string]string{"web-1-id": "i-0abc", "web-1-ip": "203.0.113.9"}

	delta := rc.ReconcileResource(context.Background(), res, outputs)
	require.NotNil(t, delta)
	require.NotNil(t, delta.Event)

	assert.Equal(t, entity.StateRunning, delta.Resource.State)
	assert.Equal(t, "i-0abc", delta.Resource.Meta[entity.MetaAWSID])
	assert.Equal(t, "203.0.113.9", delta.Resource.Meta[entity.MetaPublicIP])
	assert.Equal(t, entity.ActionProvisionSuccess, delta.Event.Action)
	assert.Equal(t, "PROVISIONING", delta.Event.Details["prior_state"])
	assert.Equal(t, "RUNNING", delta.Event.Details["new_state"])
}

func TestReconcileProvisionMissingID(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{})

	res := awsResource(entity.StateProvisioning, nil)
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateErrorProvisioning, delta.Resource.State)
	assert.Equal(t, entity.ActionProvisionFailed, delta.Event.Action)
	assert.NotEmpty(t, delta.Resource.Meta[entity.MetaLastError])
}

func TestReconcileDeprovisionConvergence(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{})

	res := awsResource(entity.StateDeprovisioning, datatypes.JSONMap{
		entity.MetaAWSID:    "i-0abc",
		entity.MetaPublicIP: "203.0.113.9",
		entity.MetaAMI:      "ami-123",
	})

	// Absent from the apply outputs: the delete went through.
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})
	require.NotNil(t, delta)

	assert.Equal(t, entity.StateTerminated, delta.Resource.State)
	assert.NotContains(t, delta.Resource.Meta, entity.MetaAWSID)
	assert.NotContains(t, delta.Resource.Meta, entity.MetaPublicIP)
	assert.Equal(t, "ami-123", delta.Resource.Meta[entity.MetaAMI])
	assert.Equal(t, entity.ActionDeprovisionSuccess, delta.Event.Action)
	assert.Equal(t, "i-0abc", delta.Event.Details["native_id"])
}

func TestReconcileDeprovisionStillPresent(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{})

	res := awsResource(entity.StateDeprovisioning, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{"web-1-id": "i-0abc"})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateErrorDeprovisioning, delta.Resource.State)
	assert.Equal(t, entity.ActionDeprovisionFailed, delta.Event.Action)
}

func TestReconcileHealStart(t *testing.T) {
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerStopped})}
	rc := newTestReconciler(adapter)

	res := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	require.NotNil(t, delta.Event)

	// Desired state is untouched; the live side gets corrected.
	assert.Equal(t, entity.StateRunning, delta.Resource.State)
	assert.Equal(t, []string{"i-0abc"}, adapter.started)
	assert.Empty(t, adapter.stopped)
	assert.Equal(t, entity.ActionAutoHealStart, delta.Event.Action)
}

func TestReconcileHealStop(t *testing.T) {
	adapter := &fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning, PublicIP: "203.0.113.9"})}
	rc := newTestReconciler(adapter)

	res := awsResource(entity.StateStopped, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateStopped, delta.Resource.State)
	assert.Equal(t, []string{"i-0abc"}, adapter.stopped)
	assert.Equal(t, entity.ActionAutoHealStop, delta.Event.Action)
}

func TestReconcileHealDispatchFailure(t *testing.T) {
	adapter := &fakeAdapter{
		result:   Found(LiveVMInfo{PowerState: PowerStopped}),
		startErr: errors.New("throttled"),
	}
	rc := newTestReconciler(adapter)

	res := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateRunning, delta.Resource.State)
	assert.Equal(t, entity.ActionAutoHealStart, delta.Event.Action)
	assert.Equal(t, "throttled", delta.Event.Details["error"])
	assert.Equal(t, "throttled", delta.Resource.Meta[entity.MetaLastError])
}

func TestReconcileDriftDeleted(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: NotFound()})

	res := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateError, delta.Resource.State)
	assert.Equal(t, entity.ActionDriftDeleted, delta.Event.Action)
	assert.Equal(t, "i-0abc", delta.Event.Details["native_id"])
}

func TestReconcileDriftDeletedInProgress(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: NotFound()})

	res := awsResource(entity.StateStarting, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateErrorStarting, delta.Resource.State)
	assert.Equal(t, entity.ActionDriftDeleted, delta.Event.Action)
}

func TestReconcileTransientHoldsStableState(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Transient(errors.New("rate limited"))})

	res := awsResource(entity.StateRunning, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	assert.Nil(t, delta)
	assert.Equal(t, entity.StateRunning, res.State)
}

func TestReconcileTransientFailsInProgress(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Transient(errors.New("rate limited"))})

	res := awsResource(entity.StateStarting, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateErrorStarting, delta.Resource.State)
	assert.Equal(t, entity.ActionStartFailed, delta.Event.Action)
	assert.Equal(t, "rate limited", delta.Resource.Meta[entity.MetaLastError])
}

func TestReconcileStableMatchingIsNoOp(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{
		result: Found(LiveVMInfo{PowerState: PowerRunning, PublicIP: "203.0.113.9"}),
	})

	res := awsResource(entity.StateRunning, datatypes.JSONMap{
		entity.MetaAWSID:    "i-0abc",
		entity.MetaPublicIP: "203.0.113.9",
	})
	outputs := map[string]string{"web-1-id": "i-0abc", "web-1-ip": "203.0.113.9"}

	assert.Nil(t, rc.ReconcileResource(context.Background(), res, outputs))
}

func TestReconcileTerminatedIsNoOp(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{})
	res := awsResource(entity.StateTerminated, nil)

	assert.Nil(t, rc.ReconcileResource(context.Background(), res, map[string]string{}))
}

func TestReconcileStartConfirmed(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning})})

	res := awsResource(entity.StateStarting, datatypes.JSONMap{
		entity.MetaAWSID:     "i-0abc",
		entity.MetaLastError: "previous failure",
	})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateRunning, delta.Resource.State)
	assert.Equal(t, entity.ActionStartSuccess, delta.Event.Action)
	assert.NotContains(t, delta.Resource.Meta, entity.MetaLastError)
}

func TestReconcileAzureUpdateConfirmed(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{
		result: Found(LiveVMInfo{PowerState: PowerRunning, PublicIP: "198.51.100.4", Location: "westeurope"}),
	})

	vmID := "/subscriptions/sub/resourceGroups/vm-2-rg/providers/Microsoft.Compute/virtualMachines/vm-2"
	res := &entity.Resource{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Provider:     entity.ProviderAzure,
		ResourceType: entity.ResourceTypeVM,
		Name:         "vm-2",
		Region:       "westeurope",
		State:        entity.StateUpdating,
		Meta: datatypes.JSONMap{
			entity.MetaAzureVMID: vmID,
			entity.MetaVMSize:    "Standard_B2s",
		},
	}

	delta := rc.ReconcileResource(context.Background(), res, map[string]string{"vm-2-id": vmID})
	require.NotNil(t, delta)

	assert.Equal(t, entity.StateRunning, delta.Resource.State)
	assert.Equal(t, entity.ActionUpdateSuccessRun, delta.Event.Action)
	assert.Equal(t, "running", delta.Resource.Meta[entity.MetaPowerState])
	assert.Equal(t, "198.51.100.4", delta.Resource.Meta[entity.MetaPublicIP])
	assert.Equal(t, "westeurope", delta.Resource.Meta[entity.MetaLocation])
}

func TestReconcileAzureUpdateCarriesSizeChange(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerRunning})})

	vmID := "/subscriptions/sub/resourceGroups/vm-2-rg/providers/Microsoft.Compute/virtualMachines/vm-2"
	res := &entity.Resource{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Provider:     entity.ProviderAzure,
		ResourceType: entity.ResourceTypeVM,
		Name:         "vm-2",
		Region:       "westeurope",
		State:        entity.StateUpdating,
		Meta: datatypes.JSONMap{
			entity.MetaAzureVMID:  vmID,
			entity.MetaVMSize:     "Standard_B2s",
			entity.MetaPrevVMSize: "Standard_B1s",
		},
	}

	delta := rc.ReconcileResource(context.Background(), res, map[string]string{"vm-2-id": vmID})
	require.NotNil(t, delta)
	require.NotNil(t, delta.Event)

	assert.Equal(t, entity.ActionUpdateSuccessRun, delta.Event.Action)
	assert.Equal(t, "Standard_B1s", delta.Event.Details["old_vm_size"])
	assert.Equal(t, "Standard_B2s", delta.Event.Details["new_vm_size"])
	// The stash is spent; only the applied size remains in meta.
	assert.NotContains(t, delta.Resource.Meta, entity.MetaPrevVMSize)
	assert.Equal(t, "Standard_B2s", delta.Resource.Meta[entity.MetaVMSize])
}

func TestReconcileEC2UpdateCarriesImageAndTypeChange(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerStopped})})

	res := awsResource(entity.StateUpdating, datatypes.JSONMap{
		entity.MetaAWSID:            "i-0abc",
		entity.MetaAMI:              "ami-456",
		entity.MetaPrevAMI:          "ami-123",
		entity.MetaInstanceType:     "t3.small",
		entity.MetaPrevInstanceType: "t3.micro",
	})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.ActionUpdateSuccessStop, delta.Event.Action)
	assert.Equal(t, "ami-123", delta.Event.Details["old_ami"])
	assert.Equal(t, "ami-456", delta.Event.Details["new_ami"])
	assert.Equal(t, "t3.micro", delta.Event.Details["old_instance_type"])
	assert.Equal(t, "t3.small", delta.Event.Details["new_instance_type"])
	assert.NotContains(t, delta.Resource.Meta, entity.MetaPrevAMI)
	assert.NotContains(t, delta.Resource.Meta, entity.MetaPrevInstanceType)
}

func TestReconcileUnknownRecoversOnObservation(t *testing.T) {
	rc := newTestReconciler(&fakeAdapter{result: Found(LiveVMInfo{PowerState: PowerStopped})})

	res := awsResource(entity.StateUnknown, datatypes.JSONMap{entity.MetaAWSID: "i-0abc"})
	delta := rc.ReconcileResource(context.Background(), res, map[string]string{})

	require.NotNil(t, delta)
	assert.Equal(t, entity.StateStopped, delta.Resource.State)
	assert.Equal(t, entity.ActionStateChanged, delta.Event.Action)
}
