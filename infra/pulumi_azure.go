package infra

import (
	"fmt"

	compute "github.com/pulumi/pulumi-azure-native-sdk/compute/v2"
	network "github.com/pulumi/pulumi-azure-native-sdk/network/v2"
	resources "github.com/pulumi/pulumi-azure-native-sdk/resources/v2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/opencmp/cmp-orchestrator/entity"
)

// azureProgram declares the full chain one Azure VM needs: resource group,
// vnet, subnet, public IP, NIC, then the VM itself, all named off the spec
// name the way the stack has always laid them out.
func azureProgram(ctx *pulumi.Context, specs []*entity.Resource) error {
	for _, r := range specs {
		meta := entity.AzureMetaFor(r)

		rg, err := resources.NewResourceGroup(ctx, r.Name+"-rg", &resources.ResourceGroupArgs{
			ResourceGroupName: pulumi.String(r.Name + "-rg"),
			Location:          pulumi.String(meta.Location()),
		})
		if err != nil {
			return fmt.Errorf("declare resource group for %s: %w", r.Name, err)
		}

		vnet, err := network.NewVirtualNetwork(ctx, r.Name+"-vnet", &network.VirtualNetworkArgs{
			ResourceGroupName: rg.Name,
			Location:          rg.Location,
			AddressSpace: &network.AddressSpaceArgs{
				AddressPrefixes: pulumi.StringArray{
					pulumi.String(metaString(r, entity.MetaVNetPrefix)),
				},
			},
		})
		if err != nil {
			return fmt.Errorf("declare vnet for %s: %w", r.Name, err)
		}

		subnet, err := network.NewSubnet(ctx, r.Name+"-subnet", &network.SubnetArgs{
			ResourceGroupName:  rg.Name,
			VirtualNetworkName: vnet.Name,
			AddressPrefix:      pulumi.String(metaString(r, entity.MetaSubnetPrefix)),
		})
		if err != nil {
			return fmt.Errorf("declare subnet for %s: %w", r.Name, err)
		}

		pip, err := network.NewPublicIPAddress(ctx, r.Name+"-pip", &network.PublicIPAddressArgs{
			ResourceGroupName:        rg.Name,
			Location:                 rg.Location,
			PublicIPAllocationMethod: pulumi.String(metaString(r, entity.MetaPublicIPMethod)),
		})
		if err != nil {
			return fmt.Errorf("declare public ip for %s: %w", r.Name, err)
		}

		nic, err := network.NewNetworkInterface(ctx, r.Name+"-nic", &network.NetworkInterfaceArgs{
			ResourceGroupName: rg.Name,
			Location:          rg.Location,
			IpConfigurations: network.NetworkInterfaceIPConfigurationArray{
				&network.NetworkInterfaceIPConfigurationArgs{
					Name:                      pulumi.String(r.Name + "-ipcfg"),
					Subnet:                    &network.SubnetTypeArgs{Id: subnet.ID()},
					PrivateIPAllocationMethod: pulumi.String("Dynamic"),
					PublicIPAddress:           &network.PublicIPAddressTypeArgs{Id: pip.ID()},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("declare nic for %s: %w", r.Name, err)
		}

		vmOpts := []pulumi.ResourceOption{}
		if id := meta.NativeID(); id != "" {
			vmOpts = append(vmOpts, pulumi.Import(pulumi.ID(id)))
		}

		vm, err := compute.NewVirtualMachine(ctx, r.Name, &compute.VirtualMachineArgs{
			ResourceGroupName: rg.Name,
			Location:          rg.Location,
			HardwareProfile: &compute.HardwareProfileArgs{
				VmSize: pulumi.String(meta.VMSize()),
			},
			OsProfile: &compute.OSProfileArgs{
				ComputerName:  pulumi.String(r.Name),
				AdminUsername: pulumi.String(metaString(r, entity.MetaAdminUsername)),
				AdminPassword: pulumi.String(metaString(r, entity.MetaAdminPassword)),
			},
			StorageProfile: &compute.StorageProfileArgs{
				ImageReference: imageReferenceArgs(r),
			},
			NetworkProfile: &compute.NetworkProfileArgs{
				NetworkInterfaces: compute.NetworkInterfaceReferenceArray{
					&compute.NetworkInterfaceReferenceArgs{
						Id:      nic.ID(),
						Primary: pulumi.Bool(true),
					},
				},
			},
		}, vmOpts...)
		if err != nil {
			return fmt.Errorf("declare vm %s: %w", r.Name, err)
		}

		ctx.Export(r.Name+"-id", vm.ID())
		ctx.Export(r.Name+"-ip", pip.IpAddress)
	}
	return nil
}

func metaString(r *entity.Resource, key string) string {
	s, _ := r.Meta[key].(string)
	return s
}

// imageReferenceArgs reads the image_reference sub-map
// (publisher/offer/sku/version) out of the meta bag.
func imageReferenceArgs(r *entity.Resource) *compute.ImageReferenceArgs {
	ref, _ := r.Meta[entity.MetaImageReference].(map[string]interface{})
	get := func(key string) string {
		s, _ := ref[key].(string)
		return s
	}
	return &compute.ImageReferenceArgs{
		Publisher: pulumi.String(get("publisher")),
		Offer:     pulumi.String(get("offer")),
		Sku:       pulumi.String(get("sku")),
		Version:   pulumi.String(get("version")),
	}
}
