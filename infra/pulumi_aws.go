package infra

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/opencmp/cmp-orchestrator/entity"
)

// awsProgram declares one EC2 instance per spec, with one aws.Provider per
// region. Instances whose id is already known are imported so a re-apply
// adopts them instead of recreating.
func awsProgram(ctx *pulumi.Context, specs []*entity.Resource) error {
	byRegion := make(map[string][]*entity.Resource)
	for _, r := range specs {
		byRegion[r.Region] = append(byRegion[r.Region], r)
	}

	for region, regionSpecs := range byRegion {
		provider, err := aws.NewProvider(ctx, "aws-p-"+region, &aws.ProviderArgs{
			Region: pulumi.String(region),
		})
		if err != nil {
			return fmt.Errorf("aws provider for region %s: %w", region, err)
		}

		for _, r := range regionSpecs {
			meta := entity.AwsMetaFor(r)
			if meta.AMI() == "" || meta.InstanceType() == "" {
				_ = ctx.Log.Warn(fmt.Sprintf("skipping %q: missing ami/instance_type", r.Name), nil)
				continue
			}

			opts := []pulumi.ResourceOption{pulumi.Provider(provider)}
			if id := meta.NativeID(); id != "" {
				opts = append(opts, pulumi.Import(pulumi.ID(id)))
			}

			inst, err := ec2.NewInstance(ctx, r.Name, &ec2.InstanceArgs{
				Ami:          pulumi.String(meta.AMI()),
				InstanceType: pulumi.String(meta.InstanceType()),
				Tags: pulumi.StringMap{
					"Name": pulumi.String(r.Name),
				},
			}, opts...)
			if err != nil {
				return fmt.Errorf("declare instance %s: %w", r.Name, err)
			}

			ctx.Export(r.Name+"-id", inst.ID())
			ctx.Export(r.Name+"-ip", inst.PublicIp)
			ctx.Export(r.Name+"-status", inst.InstanceState)
		}
	}
	return nil
}
