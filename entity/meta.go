package entity

import "gorm.io/datatypes"

// Meta keys shared by both providers.
const (
	MetaPublicIP  = "public_ip"
	MetaLastError = "last_error"
)

// AWS-specific meta keys.
const (
	MetaAWSID        = "aws_id"
	MetaAMI          = "ami"
	MetaInstanceType = "instance_type"
	MetaLaunchTime   = "launch_time"
)

// Azure-specific meta keys.
const (
	MetaAzureVMID      = "azure_vm_id"
	MetaPowerState     = "power_state"
	MetaLocation       = "location"
	MetaVMSize         = "vm_size"
	MetaVNetPrefix     = "vnet_address_prefix"
	MetaSubnetPrefix   = "subnet_prefix"
	MetaPublicIPMethod = "public_ip_allocation_method"
	MetaAdminUsername  = "admin_username"
	MetaAdminPassword  = "admin_password"
	MetaImageReference = "image_reference"
	MetaSubscriptionID = "subscription_id"
	MetaResourceGroup  = "resource_group_name"
)

// Pre-update values stashed by the API layer when it accepts an update, so
// the confirmation event can record what changed. Consumed by the reconciler
// when the update settles.
const (
	MetaPrevAMI          = "prev_ami"
	MetaPrevInstanceType = "prev_instance_type"
	MetaPrevVMSize       = "prev_vm_size"
)

// VMMeta is a typed view over a resource's open meta bag. Keys the view does
// not know about are left untouched, so forward-compatible extensions
// survive a round trip.
type VMMeta interface {
	NativeID() string
	SetNativeID(id string)
	PublicIP() string
	SetPublicIP(ip string)
	// ClearIdentity removes the provider-native id and public IP after a
	// confirmed deprovision.
	ClearIdentity()
}

type metaView struct {
	bag       datatypes.JSONMap
	nativeKey string
}

func (v metaView) str(key string) string {
	s, _ := v.bag[key].(string)
	return s
}

func (v metaView) NativeID() string      { return v.str(v.nativeKey) }
func (v metaView) SetNativeID(id string) { v.bag[v.nativeKey] = id }
func (v metaView) PublicIP() string      { return v.str(MetaPublicIP) }
func (v metaView) SetPublicIP(ip string) { v.bag[MetaPublicIP] = ip }

func (v metaView) ClearIdentity() {
	delete(v.bag, v.nativeKey)
	delete(v.bag, MetaPublicIP)
}

// AwsVMMeta views the meta bag of an AWS resource.
type AwsVMMeta struct{ metaView }

func (m AwsVMMeta) AMI() string          { return m.str(MetaAMI) }
func (m AwsVMMeta) InstanceType() string { return m.str(MetaInstanceType) }
func (m AwsVMMeta) LaunchTime() string   { return m.str(MetaLaunchTime) }

func (m AwsVMMeta) SetLaunchTime(t string) { m.bag[MetaLaunchTime] = t }

// AzureVMMeta views the meta bag of an Azure resource.
type AzureVMMeta struct{ metaView }

func (m AzureVMMeta) PowerState() string { return m.str(MetaPowerState) }
func (m AzureVMMeta) Location() string   { return m.str(MetaLocation) }
func (m AzureVMMeta) VMSize() string     { return m.str(MetaVMSize) }

func (m AzureVMMeta) SetPowerState(s string) { m.bag[MetaPowerState] = s }
func (m AzureVMMeta) SetLocation(l string)   { m.bag[MetaLocation] = l }

// MetaFor returns the provider-typed view over a resource's meta bag,
// allocating the bag if the row predates it. The view writes through to the
// resource.
func MetaFor(r *Resource) VMMeta {
	if r.Meta == nil {
		r.Meta = datatypes.JSONMap{}
	}
	switch r.Provider {
	case ProviderAzure:
		return AzureVMMeta{metaView{bag: r.Meta, nativeKey: MetaAzureVMID}}
	default:
		return AwsVMMeta{metaView{bag: r.Meta, nativeKey: MetaAWSID}}
	}
}

// AwsMetaFor and AzureMetaFor return the concrete views when the caller
// needs the provider-specific accessors.
func AwsMetaFor(r *Resource) AwsVMMeta {
	if r.Meta == nil {
		r.Meta = datatypes.JSONMap{}
	}
	return AwsVMMeta{metaView{bag: r.Meta, nativeKey: MetaAWSID}}
}

func AzureMetaFor(r *Resource) AzureVMMeta {
	if r.Meta == nil {
		r.Meta = datatypes.JSONMap{}
	}
	return AzureVMMeta{metaView{bag: r.Meta, nativeKey: MetaAzureVMID}}
}
