package infra

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"

	"github.com/opencmp/cmp-orchestrator/reconcile"
)

func TestNormalizeEC2State(t *testing.T) {
	assert.Equal(t, reconcile.PowerRunning, normalizeEC2State("running"))
	assert.Equal(t, reconcile.PowerStopped, normalizeEC2State("stopped"))
	assert.Equal(t, reconcile.PowerTerminated, normalizeEC2State("terminated"))

	for _, transitional := range []string{"pending", "stopping", "shutting-down"} {
		assert.Equal(t, reconcile.PowerTransitioning, normalizeEC2State(transitional), "state %q", transitional)
	}

	assert.Equal(t, reconcile.PowerUnknown, normalizeEC2State("rebooting"))
	assert.Equal(t, reconcile.PowerUnknown, normalizeEC2State(""))
}

func TestLiveInfoFromInstance(t *testing.T) {
	inst := types.Instance{
		State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
		PublicIpAddress: aws.String("203.0.113.9"),
		Placement:       &types.Placement{AvailabilityZone: aws.String("us-east-1a")},
	}

	info := liveInfoFromInstance(inst)
	assert.Equal(t, reconcile.PowerRunning, info.PowerState)
	assert.Equal(t, "203.0.113.9", info.PublicIP)
	assert.Equal(t, "us-east-1a", info.Location)
}

func TestLiveInfoFromInstanceMissingState(t *testing.T) {
	// DescribeInstances can return an instance without a state block.
	info := liveInfoFromInstance(types.Instance{PublicIpAddress: aws.String("203.0.113.9")})
	assert.Equal(t, reconcile.PowerUnknown, info.PowerState)
	assert.Equal(t, "203.0.113.9", info.PublicIP)
}
