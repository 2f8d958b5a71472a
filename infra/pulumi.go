package infra

import (
	"context"
	"fmt"
	"log"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	appConfig "github.com/opencmp/cmp-orchestrator/config"
	"github.com/opencmp/cmp-orchestrator/entity"
)

// programHandler generates the piece of the inline Pulumi program covering
// one provider's resources.
type programHandler func(ctx *pulumi.Context, specs []*entity.Resource) error

// PulumiClient wraps the Pulumi automation API as the provisioning tool.
// One stack per project; Apply refreshes before up so externally-deleted
// resources are pruned from state first.
type PulumiClient struct {
	projectName string
	envVars     map[string]string
	handlers    map[entity.Provider]programHandler
}

func InitPulumiClient(cfg *appConfig.EnvConfig) *PulumiClient {
	// The handler map is built once, explicitly. Adding a provider means
	// adding a line here.
	handlers := map[entity.Provider]programHandler{
		entity.ProviderAWS:   awsProgram,
		entity.ProviderAzure: azureProgram,
	}

	envVars := map[string]string{
		"AWS_ACCESS_KEY_ID":     cfg.AWS.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": cfg.AWS.SecretAccessKey,
		"ARM_CLIENT_ID":         cfg.Azure.ClientID,
		"ARM_CLIENT_SECRET":     cfg.Azure.ClientSecret,
		"ARM_TENANT_ID":         cfg.Azure.TenantID,
		"ARM_SUBSCRIPTION_ID":   cfg.Azure.SubscriptionID,
	}

	return &PulumiClient{
		projectName: cfg.Pulumi.ProjectName,
		envVars:     envVars,
		handlers:    handlers,
	}
}

func (p *PulumiClient) stackName(projectID string) string {
	return fmt.Sprintf("cmp-cloud-project-%s-stack", projectID)
}

// Apply converges the project's stack to the declared resources and returns
// the flattened stack outputs, keyed "{name}-id" / "{name}-ip" /
// "{name}-status". Resources being deprovisioned or already terminated are
// omitted from the program; Pulumi's diff deletes them.
func (p *PulumiClient) Apply(ctx context.Context, projectID string, resources []*entity.Resource) (map[string]string, error) {
	stack, err := auto.UpsertStackInlineSource(ctx, p.stackName(projectID), p.projectName,
		p.buildProgram(resources), auto.EnvVars(p.envVars))
	if err != nil {
		return nil, fmt.Errorf("select stack for project %s: %w", projectID, err)
	}

	// Refresh prunes state entries for resources deleted out of band, so
	// the following up re-creates or forgets them instead of erroring.
	if _, err := stack.Refresh(ctx); err != nil {
		log.Printf("pulumi refresh failed for project %s (continuing): %v", projectID, err)
	}

	result, err := stack.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("pulumi up for project %s: %w", projectID, err)
	}

	outputs := make(map[string]string, len(result.Outputs))
	for key, out := range result.Outputs {
		if s, ok := out.Value.(string); ok {
			outputs[key] = s
		} else {
			outputs[key] = fmt.Sprintf("%v", out.Value)
		}
	}
	return outputs, nil
}

// Destroy tears down every cloud resource in the project's stack.
func (p *PulumiClient) Destroy(ctx context.Context, projectID string) error {
	noop := func(*pulumi.Context) error { return nil }
	stack, err := auto.UpsertStackInlineSource(ctx, p.stackName(projectID), p.projectName,
		noop, auto.EnvVars(p.envVars))
	if err != nil {
		return fmt.Errorf("select stack for project %s: %w", projectID, err)
	}
	if _, err := stack.Destroy(ctx); err != nil {
		return fmt.Errorf("pulumi destroy for project %s: %w", projectID, err)
	}
	return nil
}

func (p *PulumiClient) buildProgram(resources []*entity.Resource) pulumi.RunFunc {
	return func(ctx *pulumi.Context) error {
		specsByProvider := make(map[entity.Provider][]*entity.Resource)
		for _, r := range resources {
			switch r.State {
			case entity.StatePendingDeprovision, entity.StateDeprovisioning:
				// Omitted on purpose: absence from the program signals
				// deletion to the diff.
				continue
			case entity.StateTerminated:
				continue
			}
			specsByProvider[r.Provider] = append(specsByProvider[r.Provider], r)
		}

		for provider, specs := range specsByProvider {
			handler, ok := p.handlers[provider]
			if !ok {
				_ = ctx.Log.Warn(fmt.Sprintf("no program handler for provider %q", provider), nil)
				continue
			}
			if err := handler(ctx, specs); err != nil {
				return err
			}
		}
		return nil
	}
}
