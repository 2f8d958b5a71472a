package infra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"

	appConfig "github.com/opencmp/cmp-orchestrator/config"
	"github.com/opencmp/cmp-orchestrator/reconcile"
)

// AzureClient implements reconcile.VMAdapter against Azure compute. The
// native id is the full hierarchical resource path; parsing it is internal
// to this adapter, callers never see subscription or resource group.
type AzureClient struct {
	cred    azcore.TokenCredential
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*armcompute.VirtualMachinesClient // by subscription
}

func InitAzureClient(cfg *appConfig.EnvConfig) *AzureClient {
	var (
		cred azcore.TokenCredential
		err  error
	)
	if cfg.Azure.ClientID != "" && cfg.Azure.ClientSecret != "" && cfg.Azure.TenantID != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.Azure.TenantID, cfg.Azure.ClientID, cfg.Azure.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		log.Fatalf("Azure credential init failed: %v", err)
	}

	return &AzureClient{
		cred:    cred,
		timeout: cfg.Reconcile.ProviderTimeout,
		clients: make(map[string]*armcompute.VirtualMachinesClient),
	}
}

// azureVMID is the decomposed form of
// /subscriptions/{sub}/resourceGroups/{rg}/providers/.../virtualMachines/{name}.
type azureVMID struct {
	SubscriptionID string
	ResourceGroup  string
	Name           string
}

func parseAzureVMID(id string) (azureVMID, error) {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	if len(parts) < 8 || !strings.EqualFold(parts[0], "subscriptions") || !strings.EqualFold(parts[2], "resourceGroups") {
		return azureVMID{}, fmt.Errorf("malformed azure vm id %q", id)
	}
	return azureVMID{
		SubscriptionID: parts[1],
		ResourceGroup:  parts[3],
		Name:           parts[len(parts)-1],
	}, nil
}

func (c *AzureClient) forSubscription(subscriptionID string) (*armcompute.VirtualMachinesClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[subscriptionID]; ok {
		return client, nil
	}
	client, err := armcompute.NewVirtualMachinesClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure vm client for subscription %s: %w", subscriptionID, err)
	}
	c.clients[subscriptionID] = client
	return client, nil
}

func (c *AzureClient) FetchLiveInfo(ctx context.Context, _ string, nativeID string) reconcile.LiveVMResult {
	vmID, err := parseAzureVMID(nativeID)
	if err != nil {
		return reconcile.Transient(err)
	}
	client, err := c.forSubscription(vmID.SubscriptionID)
	if err != nil {
		return reconcile.Transient(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	view, err := client.InstanceView(ctx, vmID.ResourceGroup, vmID.Name, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return reconcile.NotFound()
		}
		return reconcile.Transient(fmt.Errorf("instance view for %s: %w", vmID.Name, err))
	}

	return reconcile.Found(reconcile.LiveVMInfo{
		PowerState: powerStateFromInstanceView(view.VirtualMachineInstanceView),
	})
}

func (c *AzureClient) Start(ctx context.Context, _ string, nativeID string) error {
	vmID, err := parseAzureVMID(nativeID)
	if err != nil {
		return err
	}
	client, err := c.forSubscription(vmID.SubscriptionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	poller, err := client.BeginStart(ctx, vmID.ResourceGroup, vmID.Name, nil)
	if err != nil {
		return fmt.Errorf("start vm %s: %w", vmID.Name, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return fmt.Errorf("wait for vm %s start: %w", vmID.Name, err)
	}
	return nil
}

// Stop deallocates so the VM stops accruing compute charges; both "stopped"
// and "deallocated" normalize to stopped on the next live read.
func (c *AzureClient) Stop(ctx context.Context, _ string, nativeID string) error {
	vmID, err := parseAzureVMID(nativeID)
	if err != nil {
		return err
	}
	client, err := c.forSubscription(vmID.SubscriptionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	poller, err := client.BeginDeallocate(ctx, vmID.ResourceGroup, vmID.Name, nil)
	if err != nil {
		return fmt.Errorf("stop vm %s: %w", vmID.Name, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return fmt.Errorf("wait for vm %s stop: %w", vmID.Name, err)
	}
	return nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// powerStateFromInstanceView picks the PowerState/* status code out of the
// instance view and normalizes it.
func powerStateFromInstanceView(view armcompute.VirtualMachineInstanceView) reconcile.PowerState {
	for _, status := range view.Statuses {
		if status == nil || status.Code == nil {
			continue
		}
		code, ok := strings.CutPrefix(*status.Code, "PowerState/")
		if !ok {
			continue
		}
		switch code {
		case "running":
			return reconcile.PowerRunning
		case "stopped", "deallocated":
			return reconcile.PowerStopped
		case "starting", "stopping", "deallocating":
			return reconcile.PowerTransitioning
		}
	}
	return reconcile.PowerUnknown
}
