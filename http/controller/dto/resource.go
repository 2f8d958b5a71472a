package dto

type CreateEC2RequestDTO struct {
	Name         string `json:"name" binding:"required,min=1,max=63"`
	Region       string `json:"region" binding:"required"`
	AMI          string `json:"ami" binding:"required"`
	InstanceType string `json:"instance_type" binding:"required"`
}

type UpdateEC2RequestDTO struct {
	AMI          string `json:"ami"`
	InstanceType string `json:"instance_type"`
}

type ImageReferenceDTO struct {
	Publisher string `json:"publisher" binding:"required"`
	Offer     string `json:"offer" binding:"required"`
	Sku       string `json:"sku" binding:"required"`
	Version   string `json:"version" binding:"required"`
}

type CreateAzureVMRequestDTO struct {
	Name           string            `json:"name" binding:"required,min=1,max=63"`
	Location       string            `json:"location" binding:"required"`
	VMSize         string            `json:"vm_size" binding:"required"`
	AdminUsername  string            `json:"admin_username" binding:"required"`
	AdminPassword  string            `json:"admin_password" binding:"required,min=12"`
	ImageReference ImageReferenceDTO `json:"image_reference" binding:"required"`

	VNetAddressPrefix        string `json:"vnet_address_prefix"`
	SubnetPrefix             string `json:"subnet_prefix"`
	PublicIPAllocationMethod string `json:"public_ip_allocation_method" binding:"omitempty,oneof=Static Dynamic"`
}

type UpdateAzureVMRequestDTO struct {
	VMSize string `json:"vm_size" binding:"required"`
}
