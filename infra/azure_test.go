package infra

import (
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencmp/cmp-orchestrator/reconcile"
)

func TestParseAzureVMID(t *testing.T) {
	id := "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/web-1-rg/providers/Microsoft.Compute/virtualMachines/web-1"

	parsed, err := parseAzureVMID(id)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", parsed.SubscriptionID)
	assert.Equal(t, "web-1-rg", parsed.ResourceGroup)
	assert.Equal(t, "web-1", parsed.Name)
}

func TestParseAzureVMIDMalformed(t *testing.T) {
	for _, id := range []string{
		"",
		"i-0abc",
		"/subscriptions/sub-only",
		"/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm",
	} {
		_, err := parseAzureVMID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestPowerStateFromInstanceView(t *testing.T) {
	view := func(code string) armcompute.VirtualMachineInstanceView {
		return armcompute.VirtualMachineInstanceView{
			Statuses: []*armcompute.InstanceViewStatus{
				{Code: to.Ptr("ProvisioningState/succeeded")},
				{Code: to.Ptr(code)},
			},
		}
	}

	assert.Equal(t, reconcile.PowerRunning, powerStateFromInstanceView(view("PowerState/running")))
	assert.Equal(t, reconcile.PowerStopped, powerStateFromInstanceView(view("PowerState/stopped")))
	assert.Equal(t, reconcile.PowerStopped, powerStateFromInstanceView(view("PowerState/deallocated")))
	assert.Equal(t, reconcile.PowerTransitioning, powerStateFromInstanceView(view("PowerState/starting")))
	assert.Equal(t, reconcile.PowerTransitioning, powerStateFromInstanceView(view("PowerState/deallocating")))

	// No power status at all.
	assert.Equal(t, reconcile.PowerUnknown, powerStateFromInstanceView(armcompute.VirtualMachineInstanceView{}))
}
