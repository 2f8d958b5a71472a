package reconcile

import "github.com/opencmp/cmp-orchestrator/entity"

// MapLiveState folds a normalized live power state onto the stored lifecycle
// state. Pure function, no I/O.
//
// Rules:
//   - a definite observation (running/stopped/terminated) wins;
//   - transitioning keeps an in-progress state in progress instead of
//     prematurely marking it stable;
//   - an unknown read keeps PROVISIONING/UPDATING in place so a transient
//     query blip does not flap the row to UNKNOWN mid-provision;
//   - error states are sticky: only a definite observation clears them.
func MapLiveState(power PowerState, current entity.ResourceState) entity.ResourceState {
	switch power {
	case PowerRunning:
		return entity.StateRunning
	case PowerStopped:
		return entity.StateStopped
	case PowerTerminated:
		return entity.StateTerminated
	case PowerTransitioning:
		if current.InProgress() {
			return current
		}
		if current.IsError() {
			return current
		}
		return entity.StateUnknown
	default: // PowerUnknown or anything unrecognized
		if current == entity.StateProvisioning || current == entity.StateUpdating {
			return current
		}
		if current.IsError() {
			return current
		}
		return entity.StateUnknown
	}
}
