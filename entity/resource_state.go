package entity

import (
	"errors"
	"fmt"
)

// ResourceState is the lifecycle value stored on a resource row. PENDING_*
// states are written by the API layer only; everything else is owned by the
// reconcile orchestrator.
type ResourceState string

const (
	StatePendingProvision   ResourceState = "PENDING_PROVISION"
	StatePendingUpdate      ResourceState = "PENDING_UPDATE"
	StatePendingDeprovision ResourceState = "PENDING_DEPROVISION"
	StatePendingStart       ResourceState = "PENDING_START"
	StatePendingStop        ResourceState = "PENDING_STOP"

	StateProvisioning   ResourceState = "PROVISIONING"
	StateUpdating       ResourceState = "UPDATING"
	StateDeprovisioning ResourceState = "DEPROVISIONING"
	StateStarting       ResourceState = "STARTING"
	StateStopping       ResourceState = "STOPPING"

	StateRunning    ResourceState = "RUNNING"
	StateStopped    ResourceState = "STOPPED"
	StateTerminated ResourceState = "TERMINATED"

	StateErrorProvisioning   ResourceState = "ERROR_PROVISIONING"
	StateErrorUpdating       ResourceState = "ERROR_UPDATING"
	StateErrorDeprovisioning ResourceState = "ERROR_DEPROVISIONING"
	StateErrorStarting       ResourceState = "ERROR_STARTING"
	StateErrorStopping       ResourceState = "ERROR_STOPPING"
	StateError               ResourceState = "ERROR"

	StateUnknown ResourceState = "UNKNOWN"
)

// ErrConflict is returned when a requested mutation violates the legal
// transition table. The API layer maps it to HTTP 409.
var ErrConflict = errors.New("conflict")

// Intent is a user-facing mutation kind requested through the API.
type Intent string

const (
	IntentProvision   Intent = "provision"
	IntentUpdate      Intent = "update"
	IntentDeprovision Intent = "deprovision"
	IntentStart       Intent = "start"
	IntentStop        Intent = "stop"
)

var allStates = map[ResourceState]struct{}{
	StatePendingProvision: {}, StatePendingUpdate: {}, StatePendingDeprovision: {},
	StatePendingStart: {}, StatePendingStop: {},
	StateProvisioning: {}, StateUpdating: {}, StateDeprovisioning: {},
	StateStarting: {}, StateStopping: {},
	StateRunning: {}, StateStopped: {}, StateTerminated: {},
	StateErrorProvisioning: {}, StateErrorUpdating: {}, StateErrorDeprovisioning: {},
	StateErrorStarting: {}, StateErrorStopping: {}, StateError: {},
	StateUnknown: {},
}

func (s ResourceState) Valid() bool {
	_, ok := allStates[s]
	return ok
}

func (s ResourceState) Pending() bool {
	switch s {
	case StatePendingProvision, StatePendingUpdate, StatePendingDeprovision, StatePendingStart, StatePendingStop:
		return true
	}
	return false
}

func (s ResourceState) InProgress() bool {
	switch s {
	case StateProvisioning, StateUpdating, StateDeprovisioning, StateStarting, StateStopping:
		return true
	}
	return false
}

func (s ResourceState) IsError() bool {
	switch s {
	case StateErrorProvisioning, StateErrorUpdating, StateErrorDeprovisioning,
		StateErrorStarting, StateErrorStopping, StateError:
		return true
	}
	return false
}

func (s ResourceState) Terminal() bool {
	return s == StateTerminated
}

var pendingToInProgress = map[ResourceState]ResourceState{
	StatePendingProvision:   StateProvisioning,
	StatePendingUpdate:      StateUpdating,
	StatePendingDeprovision: StateDeprovisioning,
	StatePendingStart:       StateStarting,
	StatePendingStop:        StateStopping,
}

// InProgressFor maps a PENDING_* state to the in-progress state the
// orchestrator sets before invoking the provisioning tool. Non-pending
// states map to themselves.
func (s ResourceState) InProgressFor() ResourceState {
	if next, ok := pendingToInProgress[s]; ok {
		return next
	}
	return s
}

var inProgressToError = map[ResourceState]ResourceState{
	StateProvisioning:   StateErrorProvisioning,
	StateUpdating:       StateErrorUpdating,
	StateDeprovisioning: StateErrorDeprovisioning,
	StateStarting:       StateErrorStarting,
	StateStopping:       StateErrorStopping,
}

// ErrorFor returns the error state matching an in-progress state, or the
// generic ERROR for anything else.
func (s ResourceState) ErrorFor() ResourceState {
	if e, ok := inProgressToError[s]; ok {
		return e
	}
	return StateError
}

// CanRequest enforces the legal-transition preconditions for user-facing
// mutations. It returns an ErrConflict-wrapped error describing the
// violation, and nil when the intent is accepted from the current state.
// The zero value of current ("") means the resource does not exist yet.
func CanRequest(current ResourceState, intent Intent) error {
	switch intent {
	case IntentProvision:
		switch current {
		case "", StateStopped, StateError, StateErrorProvisioning:
			return nil
		}
	case IntentUpdate:
		switch current {
		case StateRunning, StateStopped, StateUnknown,
			StateError, StateErrorProvisioning, StateErrorUpdating,
			StateErrorStarting, StateErrorStopping:
			return nil
		}
	case IntentDeprovision:
		switch current {
		case StateTerminated:
			return fmt.Errorf("%w: resource already terminated", ErrConflict)
		case StatePendingDeprovision, StateDeprovisioning:
			return fmt.Errorf("%w: deprovision already in progress", ErrConflict)
		default:
			return nil
		}
	case IntentStart:
		switch current {
		case StateStopped, StateErrorStarting, StateError:
			return nil
		}
	case IntentStop:
		switch current {
		case StateRunning, StateErrorStopping, StateError:
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s a resource in state %s", ErrConflict, intent, current)
}

// PendingFor returns the PENDING_* state a mutation intent writes.
func (i Intent) PendingFor() ResourceState {
	switch i {
	case IntentProvision:
		return StatePendingProvision
	case IntentUpdate:
		return StatePendingUpdate
	case IntentDeprovision:
		return StatePendingDeprovision
	case IntentStart:
		return StatePendingStart
	case IntentStop:
		return StatePendingStop
	}
	return StateUnknown
}
