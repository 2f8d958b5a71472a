package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestMetaForWritesThrough(t *testing.T) {
	aws := &Resource{Provider: ProviderAWS}
	meta := MetaFor(aws)
	meta.SetNativeID("i-0abc")
	meta.SetPublicIP("203.0.113.9")

	assert.Equal(t, "i-0abc", aws.Meta[MetaAWSID])
	assert.Equal(t, "203.0.113.9", aws.Meta[MetaPublicIP])
	assert.Equal(t, "i-0abc", meta.NativeID())

	azure := &Resource{Provider: ProviderAzure}
	MetaFor(azure).SetNativeID("/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm-1")
	assert.Contains(t, azure.Meta[MetaAzureVMID], "virtualMachines/vm-1")
	_, hasAWSKey := azure.Meta[MetaAWSID]
	assert.False(t, hasAWSKey)
}

func TestClearIdentityKeepsOtherKeys(t *testing.T) {
	r := &Resource{
		Provider: ProviderAWS,
		Meta: datatypes.JSONMap{
			MetaAWSID:        "i-0abc",
			MetaPublicIP:     "203.0.113.9",
			MetaAMI:          "ami-123",
			MetaInstanceType: "t3.micro",
		},
	}

	MetaFor(r).ClearIdentity()

	assert.NotContains(t, r.Meta, MetaAWSID)
	assert.NotContains(t, r.Meta, MetaPublicIP)
	assert.Equal(t, "ami-123", r.Meta[MetaAMI])
	assert.Equal(t, "t3.micro", r.Meta[MetaInstanceType])
}

func TestCloneIsDeep(t *testing.T) {
	r := &Resource{
		Provider: ProviderAWS,
		State:    StateRunning,
		Meta:     datatypes.JSONMap{MetaAWSID: "i-0abc"},
	}

	cp := r.Clone()
	cp.State = StateStopped
	cp.Meta[MetaAWSID] = "i-0def"

	assert.Equal(t, StateRunning, r.State)
	assert.Equal(t, "i-0abc", r.Meta[MetaAWSID])
}
