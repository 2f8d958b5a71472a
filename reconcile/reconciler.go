package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/opencmp/cmp-orchestrator/entity"
)

// Logger is the slice of the logging client the reconcile package needs.
type Logger interface {
	InfoWithContextf(ctx context.Context, format string, args ...interface{})
	WarningWithContextf(ctx context.Context, format string, args ...interface{})
	ErrorWithContextf(ctx context.Context, err error, format string, args ...interface{})
}

// Delta is the outcome of reconciling one resource: the mutated row to
// persist and, when the outcome is state-changing, the audit event recording
// it. Event may be nil for meta-only refreshes. A nil *Delta means the
// resource needs no write at all this run.
type Delta struct {
	Resource *entity.Resource
	Event    *entity.AuditEvent
}

// Reconciler computes per-resource deltas from provisioning outputs and live
// provider data. It never writes to storage; the orchestrator commits the
// deltas it returns.
type Reconciler struct {
	adapters map[entity.Provider]VMAdapter
	logger   Logger
	now      func() time.Time
}

func NewReconciler(adapters map[entity.Provider]VMAdapter, logger Logger) *Reconciler {
	return &Reconciler{adapters: adapters, logger: logger, now: time.Now}
}

// ReconcileResource reconciles one resource snapshot against the provisioning
// outputs of the latest apply. The caller owns the snapshot; it is mutated in
// place and returned inside the delta when anything changed.
func (rc *Reconciler) ReconcileResource(ctx context.Context, res *entity.Resource, outputs map[string]string) *Delta {
	prior := res.State
	if prior == entity.StateTerminated {
		return nil
	}

	meta := entity.MetaFor(res)
	outID := outputs[res.Name+"-id"]
	outIP := outputs[res.Name+"-ip"]

	if prior == entity.StateDeprovisioning {
		return rc.confirmDeprovision(ctx, res, meta, outID)
	}

	metaChanged := false
	if outID != "" && meta.NativeID() != outID {
		meta.SetNativeID(outID)
		metaChanged = true
	}
	if outIP != "" && meta.PublicIP() != outIP {
		meta.SetPublicIP(outIP)
		metaChanged = true
	}

	nativeID := meta.NativeID()
	if nativeID == "" {
		return rc.missingIdentity(ctx, res, prior)
	}

	adapter, ok := rc.adapters[res.Provider]
	if !ok {
		res.Meta[entity.MetaLastError] = "no adapter registered for provider " + string(res.Provider)
		res.State = prior.ErrorFor()
		rc.logger.ErrorWithContextf(ctx, nil, "resource %s: no adapter for provider %s", res.ID, res.Provider)
		return rc.delta(res, prior, failureActionFor(prior), nil)
	}

	result := adapter.FetchLiveInfo(ctx, res.Region, nativeID)
	switch result.Kind {
	case LiveNotFound:
		return rc.driftDeleted(ctx, res, prior, nativeID)
	case LiveTransient:
		if prior.InProgress() {
			res.Meta[entity.MetaLastError] = result.Err.Error()
			res.State = prior.ErrorFor()
			rc.logger.ErrorWithContextf(ctx, result.Err, "resource %s: provider query failed while %s", res.ID, prior)
			return rc.delta(res, prior, failureActionFor(prior), nil)
		}
		// Stable row, flaky provider: hold and retry next run.
		rc.logger.WarningWithContextf(ctx, "resource %s: transient provider error, retrying next run: %v", res.ID, result.Err)
		return nil
	}

	info := result.Info
	if info.PublicIP != "" && meta.PublicIP() != info.PublicIP {
		meta.SetPublicIP(info.PublicIP)
		metaChanged = true
	}
	switch res.Provider {
	case entity.ProviderAWS:
		if info.LaunchTime != nil {
			am := entity.AwsMetaFor(res)
			if t := info.LaunchTime.UTC().Format(time.RFC3339); am.LaunchTime() != t {
				am.SetLaunchTime(t)
				metaChanged = true
			}
		}
	case entity.ProviderAzure:
		zm := entity.AzureMetaFor(res)
		if ps := string(info.PowerState); zm.PowerState() != ps {
			zm.SetPowerState(ps)
			metaChanged = true
		}
		if info.Location != "" && zm.Location() != info.Location {
			zm.SetLocation(info.Location)
			metaChanged = true
		}
	}

	observed := MapLiveState(info.PowerState, prior)
	return rc.applyObservation(ctx, adapter, res, prior, observed, metaChanged)
}

// confirmDeprovision resolves a DEPROVISIONING row against the apply
// outputs: absence means the delete went through.
func (rc *Reconciler) confirmDeprovision(ctx context.Context, res *entity.Resource, meta entity.VMMeta, outID string) *Delta {
	if outID != "" {
		res.Meta[entity.MetaLastError] = "still present in provisioning outputs after delete"
		res.State = entity.StateErrorDeprovisioning
		rc.logger.WarningWithContextf(ctx, "resource %s still present after deprovision apply", res.ID)
		return rc.delta(res, entity.StateDeprovisioning, entity.ActionDeprovisionFailed, nil)
	}

	details := datatypes.JSONMap{}
	if id := meta.NativeID(); id != "" {
		details["native_id"] = id
	}
	if ip := meta.PublicIP(); ip != "" {
		details["public_ip"] = ip
	}
	meta.ClearIdentity()
	delete(res.Meta, entity.MetaLastError)
	res.State = entity.StateTerminated
	rc.logger.InfoWithContextf(ctx, "resource %s (%s) deprovisioned", res.ID, res.Name)
	return rc.delta(res, entity.StateDeprovisioning, entity.ActionDeprovisionSuccess, details)
}

// missingIdentity handles a row with no native id anywhere: legal only right
// after a failed provision, an error otherwise.
func (rc *Reconciler) missingIdentity(ctx context.Context, res *entity.Resource, prior entity.ResourceState) *Delta {
	switch prior {
	case entity.StateProvisioning:
		res.Meta[entity.MetaLastError] = "no native id in provisioning outputs"
		res.State = entity.StateErrorProvisioning
		return rc.delta(res, prior, entity.ActionProvisionFailed, nil)
	case entity.StateUpdating:
		res.Meta[entity.MetaLastError] = "no native id in provisioning outputs"
		res.State = entity.StateErrorUpdating
		return rc.delta(res, prior, entity.ActionUpdateFailed, nil)
	case entity.StateError:
		return nil
	default:
		res.Meta[entity.MetaLastError] = "resource has no provider-native id"
		res.State = entity.StateError
		rc.logger.WarningWithContextf(ctx, "resource %s (%s) has no native id in state %s", res.ID, res.Name, prior)
		return rc.delta(res, prior, entity.ActionStateChanged, datatypes.JSONMap{"drift_detected": true})
	}
}

// driftDeleted handles a provider NotFound for a row that should exist.
func (rc *Reconciler) driftDeleted(ctx context.Context, res *entity.Resource, prior entity.ResourceState, nativeID string) *Delta {
	next := prior.ErrorFor()
	if prior == next {
		return nil
	}
	res.Meta[entity.MetaLastError] = "instance not found at provider"
	res.State = next
	rc.logger.WarningWithContextf(ctx, "resource %s (%s): instance %s deleted out of band", res.ID, res.Name, nativeID)
	return rc.delta(res, prior, entity.ActionDriftDeleted, datatypes.JSONMap{"native_id": nativeID})
}

// applyObservation folds the mapped live state onto the stored one,
// dispatching self-heal for stable-state drift.
func (rc *Reconciler) applyObservation(ctx context.Context, adapter VMAdapter, res *entity.Resource, prior, observed entity.ResourceState, metaChanged bool) *Delta {
	switch prior {
	case entity.StateProvisioning:
		switch observed {
		case entity.StateRunning, entity.StateStopped:
			return rc.settle(ctx, res, prior, observed, entity.ActionProvisionSuccess, nil)
		case prior:
			return rc.metaOnly(res, metaChanged)
		default:
			return rc.fail(ctx, res, prior, observed, entity.StateErrorProvisioning, entity.ActionProvisionFailed)
		}

	case entity.StateUpdating:
		switch observed {
		case entity.StateRunning:
			return rc.settle(ctx, res, prior, observed, entity.ActionUpdateSuccessRun, consumeUpdateChange(res))
		case entity.StateStopped:
			return rc.settle(ctx, res, prior, observed, entity.ActionUpdateSuccessStop, consumeUpdateChange(res))
		case prior:
			return rc.metaOnly(res, metaChanged)
		default:
			consumeUpdateChange(res)
			return rc.fail(ctx, res, prior, observed, entity.StateErrorUpdating, entity.ActionUpdateFailed)
		}

	case entity.StateStarting:
		switch observed {
		case entity.StateRunning:
			return rc.settle(ctx, res, prior, observed, entity.ActionStartSuccess, nil)
		case prior:
			return rc.metaOnly(res, metaChanged)
		default:
			return rc.fail(ctx, res, prior, observed, entity.StateErrorStarting, entity.ActionStartFailed)
		}

	case entity.StateStopping:
		switch observed {
		case entity.StateStopped:
			return rc.settle(ctx, res, prior, observed, entity.ActionStopSuccess, nil)
		case prior:
			return rc.metaOnly(res, metaChanged)
		default:
			return rc.fail(ctx, res, prior, observed, entity.StateErrorStopping, entity.ActionStopFailed)
		}

	case entity.StateRunning:
		switch observed {
		case entity.StateRunning:
			return rc.metaOnly(res, metaChanged)
		case entity.StateStopped:
			return rc.heal(ctx, adapter, res, entity.ActionAutoHealStart)
		case entity.StateTerminated:
			return rc.driftDeleted(ctx, res, prior, entity.MetaFor(res).NativeID())
		default:
			return rc.observe(ctx, res, prior, observed)
		}

	case entity.StateStopped:
		switch observed {
		case entity.StateStopped:
			return rc.metaOnly(res, metaChanged)
		case entity.StateRunning:
			return rc.heal(ctx, adapter, res, entity.ActionAutoHealStop)
		case entity.StateTerminated:
			return rc.driftDeleted(ctx, res, prior, entity.MetaFor(res).NativeID())
		default:
			return rc.observe(ctx, res, prior, observed)
		}

	default:
		// UNKNOWN and the sticky ERROR_* family: only a definite observation
		// moves the row.
		switch observed {
		case entity.StateRunning, entity.StateStopped:
			return rc.settle(ctx, res, prior, observed, entity.ActionStateChanged, nil)
		case entity.StateTerminated:
			return rc.driftDeleted(ctx, res, prior, entity.MetaFor(res).NativeID())
		default:
			return rc.metaOnly(res, metaChanged)
		}
	}
}

// heal issues the corrective start/stop for a stable row whose live power
// state drifted. Desired state is untouched; exactly one heal event is
// recorded per run regardless of command outcome.
func (rc *Reconciler) heal(ctx context.Context, adapter VMAdapter, res *entity.Resource, action string) *Delta {
	nativeID := entity.MetaFor(res).NativeID()
	details := datatypes.JSONMap{"native_id": nativeID}

	var err error
	if action == entity.ActionAutoHealStart {
		rc.logger.InfoWithContextf(ctx, "resource %s (%s): live stopped while desired RUNNING, starting", res.ID, res.Name)
		err = adapter.Start(ctx, res.Region, nativeID)
	} else {
		rc.logger.InfoWithContextf(ctx, "resource %s (%s): live running while desired STOPPED, stopping", res.ID, res.Name)
		err = adapter.Stop(ctx, res.Region, nativeID)
	}
	if err != nil {
		res.Meta[entity.MetaLastError] = err.Error()
		details["error"] = err.Error()
		rc.logger.ErrorWithContextf(ctx, err, "resource %s: self-heal dispatch failed", res.ID)
	}
	return rc.delta(res, res.State, action, details)
}

// settle moves the row to a stable observed state and clears last_error.
func (rc *Reconciler) settle(ctx context.Context, res *entity.Resource, prior, next entity.ResourceState, action string, extra datatypes.JSONMap) *Delta {
	delete(res.Meta, entity.MetaLastError)
	res.State = next
	rc.logger.InfoWithContextf(ctx, "resource %s (%s): %s -> %s", res.ID, res.Name, prior, next)
	return rc.delta(res, prior, action, extra)
}

// fail moves an in-progress row to its error state after an unacceptable
// observation.
func (rc *Reconciler) fail(ctx context.Context, res *entity.Resource, prior, observed, next entity.ResourceState, action string) *Delta {
	res.Meta[entity.MetaLastError] = "unexpected live state " + string(observed) + " while " + string(prior)
	res.State = next
	rc.logger.WarningWithContextf(ctx, "resource %s (%s): observed %s while %s", res.ID, res.Name, observed, prior)
	return rc.delta(res, prior, action, datatypes.JSONMap{"observed": string(observed)})
}

// observe records a plain state change (stable row drifting to UNKNOWN and
// similar) without corrective action.
func (rc *Reconciler) observe(ctx context.Context, res *entity.Resource, prior, next entity.ResourceState) *Delta {
	if prior == next {
		return nil
	}
	res.State = next
	rc.logger.WarningWithContextf(ctx, "resource %s (%s): %s -> %s", res.ID, res.Name, prior, next)
	return rc.delta(res, prior, entity.ActionStateChanged, nil)
}

// metaOnly persists refreshed meta without an audit event; a no-op run
// returns nil so a stable project commits nothing.
func (rc *Reconciler) metaOnly(res *entity.Resource, metaChanged bool) *Delta {
	if !metaChanged {
		return nil
	}
	res.UpdatedAt = rc.now().UTC().Format(time.RFC3339)
	return &Delta{Resource: res}
}

func (rc *Reconciler) delta(res *entity.Resource, prior entity.ResourceState, action string, extra datatypes.JSONMap) *Delta {
	now := rc.now().UTC().Format(time.RFC3339)
	res.UpdatedAt = now

	details := datatypes.JSONMap{
		"prior_state": string(prior),
		"new_state":   string(res.State),
	}
	meta := entity.MetaFor(res)
	if id := meta.NativeID(); id != "" {
		details["native_id"] = id
	}
	if ip := meta.PublicIP(); ip != "" {
		details["public_ip"] = ip
	}
	for k, v := range extra {
		details[k] = v
	}

	projectID := res.ProjectID
	return &Delta{
		Resource: res,
		Event: &entity.AuditEvent{
			ID:         uuid.New(),
			ProjectID:  &projectID,
			Action:     action,
			ObjectType: string(res.ResourceType),
			ObjectID:   res.ID.String(),
			Timestamp:  now,
			Details:    details,
		},
	}
}

// consumeUpdateChange pops the pre-update values the API layer stashed when
// it accepted the update and pairs them with the applied ones, so the
// resolution event records both sides of the change. The stash is spent
// either way; a retried update re-stashes.
func consumeUpdateChange(res *entity.Resource) datatypes.JSONMap {
	details := datatypes.JSONMap{}
	switch res.Provider {
	case entity.ProviderAzure:
		if prev, ok := res.Meta[entity.MetaPrevVMSize].(string); ok {
			details["old_vm_size"] = prev
			details["new_vm_size"] = entity.AzureMetaFor(res).VMSize()
		}
	default:
		am := entity.AwsMetaFor(res)
		if prev, ok := res.Meta[entity.MetaPrevAMI].(string); ok {
			details["old_ami"] = prev
			details["new_ami"] = am.AMI()
		}
		if prev, ok := res.Meta[entity.MetaPrevInstanceType].(string); ok {
			details["old_instance_type"] = prev
			details["new_instance_type"] = am.InstanceType()
		}
	}
	delete(res.Meta, entity.MetaPrevVMSize)
	delete(res.Meta, entity.MetaPrevAMI)
	delete(res.Meta, entity.MetaPrevInstanceType)
	if len(details) == 0 {
		return nil
	}
	return details
}

func failureActionFor(prior entity.ResourceState) string {
	switch prior {
	case entity.StateProvisioning:
		return entity.ActionProvisionFailed
	case entity.StateUpdating:
		return entity.ActionUpdateFailed
	case entity.StateDeprovisioning:
		return entity.ActionDeprovisionFailed
	case entity.StateStarting:
		return entity.ActionStartFailed
	case entity.StateStopping:
		return entity.ActionStopFailed
	}
	return entity.ActionStateChanged
}
