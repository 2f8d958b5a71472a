package reconcile

import (
	"context"
	"time"
)

// PowerState is the normalized power vocabulary shared by both providers.
// Adapters translate provider-specific state names into this closed set
// before anything else sees them.
type PowerState string

const (
	PowerRunning       PowerState = "running"
	PowerStopped       PowerState = "stopped"
	PowerTransitioning PowerState = "transitioning"
	PowerTerminated    PowerState = "terminated"
	PowerUnknown       PowerState = "unknown"
)

// LiveVMInfo is the uniform live-instance view an adapter returns.
type LiveVMInfo struct {
	PowerState PowerState
	PublicIP   string
	LaunchTime *time.Time
	Location   string
}

type ResultKind int

const (
	// LiveFound: the provider returned the instance.
	LiveFound ResultKind = iota
	// LiveNotFound: the provider has no such instance. This is an expected
	// branch signaling drift or out-of-band deletion, not a failure.
	LiveNotFound
	// LiveTransient: network/auth/rate-limit failure; retry next run.
	LiveTransient
)

// LiveVMResult models the three legitimate outcomes of a live query as an
// explicit result instead of error-type dispatch.
type LiveVMResult struct {
	Kind ResultKind
	Info LiveVMInfo
	Err  error
}

func Found(info LiveVMInfo) LiveVMResult { return LiveVMResult{Kind: LiveFound, Info: info} }

func NotFound() LiveVMResult { return LiveVMResult{Kind: LiveNotFound} }

func Transient(err error) LiveVMResult { return LiveVMResult{Kind: LiveTransient, Err: err} }

// VMAdapter is one cloud provider's query/command surface. region is
// required for AWS whose instance ids are region-scoped; the Azure adapter
// ignores it because its native ids embed subscription and resource group.
// Start and Stop are idempotent and tolerate already-started/stopped
// instances.
type VMAdapter interface {
	FetchLiveInfo(ctx context.Context, region, nativeID string) LiveVMResult
	Start(ctx context.Context, region, nativeID string) error
	Stop(ctx context.Context, region, nativeID string) error
}
