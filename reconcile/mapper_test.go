package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencmp/cmp-orchestrator/entity"
)

func TestMapLiveStateDefiniteObservations(t *testing.T) {
	assert.Equal(t, entity.StateRunning, MapLiveState(PowerRunning, entity.StateProvisioning))
	assert.Equal(t, entity.StateStopped, MapLiveState(PowerStopped, entity.StateUpdating))
	assert.Equal(t, entity.StateTerminated, MapLiveState(PowerTerminated, entity.StateRunning))

	// Definite observations clear sticky errors.
	assert.Equal(t, entity.StateRunning, MapLiveState(PowerRunning, entity.StateErrorStarting))
	assert.Equal(t, entity.StateStopped, MapLiveState(PowerStopped, entity.StateError))
}

func TestMapLiveStateTransitioningHoldsInProgress(t *testing.T) {
	for _, current := range []entity.ResourceState{
		entity.StateProvisioning, entity.StateUpdating,
		entity.StateStarting, entity.StateStopping,
	} {
		assert.Equal(t, current, MapLiveState(PowerTransitioning, current), "from %q", current)
	}

	assert.Equal(t, entity.StateUnknown, MapLiveState(PowerTransitioning, entity.StateRunning))
	assert.Equal(t, entity.StateUnknown, MapLiveState(PowerTransitioning, entity.StateStopped))
}

func TestMapLiveStateUnknown(t *testing.T) {
	// PROVISIONING and UPDATING hold through a blip instead of flapping.
	assert.Equal(t, entity.StateProvisioning, MapLiveState(PowerUnknown, entity.StateProvisioning))
	assert.Equal(t, entity.StateUpdating, MapLiveState(PowerUnknown, entity.StateUpdating))

	assert.Equal(t, entity.StateUnknown, MapLiveState(PowerUnknown, entity.StateRunning))
	assert.Equal(t, entity.StateUnknown, MapLiveState(PowerUnknown, entity.StateStopped))
}

func TestMapLiveStateErrorsAreSticky(t *testing.T) {
	for _, current := range []entity.ResourceState{
		entity.StateErrorProvisioning, entity.StateErrorUpdating,
		entity.StateErrorDeprovisioning, entity.StateErrorStarting,
		entity.StateErrorStopping, entity.StateError,
	} {
		assert.Equal(t, current, MapLiveState(PowerUnknown, current), "from %q", current)
		assert.Equal(t, current, MapLiveState(PowerTransitioning, current), "from %q", current)
	}
}
