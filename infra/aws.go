package infra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	appConfig "github.com/opencmp/cmp-orchestrator/config"
	"github.com/opencmp/cmp-orchestrator/reconcile"
)

// AWSClient implements reconcile.VMAdapter against EC2. Clients are cached
// per region; instance ids are region-scoped so every call carries the
// resource's region.
type AWSClient struct {
	baseCfg aws.Config
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*ec2.Client
}

func InitAWSClient(cfg *appConfig.EnvConfig) *AWSClient {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.DefaultRegion),
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	baseCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Fatalf("AWS config load failed: %v", err)
	}

	return &AWSClient{
		baseCfg: baseCfg,
		timeout: cfg.Reconcile.ProviderTimeout,
		clients: make(map[string]*ec2.Client),
	}
}

func (c *AWSClient) forRegion(region string) *ec2.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[region]; ok {
		return client
	}
	client := ec2.NewFromConfig(c.baseCfg, func(o *ec2.Options) {
		o.Region = region
	})
	c.clients[region] = client
	return client
}

func (c *AWSClient) FetchLiveInfo(ctx context.Context, region, nativeID string) reconcile.LiveVMResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.forRegion(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{nativeID},
	})
	if err != nil {
		if isInstanceNotFound(err) {
			return reconcile.NotFound()
		}
		return reconcile.Transient(fmt.Errorf("describe instance %s: %w", nativeID, err))
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return reconcile.NotFound()
	}

	return reconcile.Found(liveInfoFromInstance(out.Reservations[0].Instances[0]))
}

// liveInfoFromInstance folds one described instance into the adapter result.
// A freshly launched instance can come back without a state block yet.
func liveInfoFromInstance(inst types.Instance) reconcile.LiveVMInfo {
	info := reconcile.LiveVMInfo{
		PowerState: reconcile.PowerUnknown,
		PublicIP:   aws.ToString(inst.PublicIpAddress),
		LaunchTime: inst.LaunchTime,
	}
	if inst.State != nil {
		info.PowerState = normalizeEC2State(string(inst.State.Name))
	}
	if inst.Placement != nil {
		info.Location = aws.ToString(inst.Placement.AvailabilityZone)
	}
	return info
}

func (c *AWSClient) Start(ctx context.Context, region, nativeID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := c.forRegion(region)
	_, err := client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{nativeID},
	})
	if err != nil {
		return fmt.Errorf("start instance %s: %w", nativeID, err)
	}

	waiter := ec2.NewInstanceRunningWaiter(client)
	input := &ec2.DescribeInstancesInput{InstanceIds: []string{nativeID}}
	if err := waiter.Wait(ctx, input, c.timeout); err != nil {
		return fmt.Errorf("wait for instance %s running: %w", nativeID, err)
	}
	return nil
}

func (c *AWSClient) Stop(ctx context.Context, region, nativeID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := c.forRegion(region)
	_, err := client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{nativeID},
	})
	if err != nil {
		return fmt.Errorf("stop instance %s: %w", nativeID, err)
	}

	waiter := ec2.NewInstanceStoppedWaiter(client)
	input := &ec2.DescribeInstancesInput{InstanceIds: []string{nativeID}}
	if err := waiter.Wait(ctx, input, c.timeout); err != nil {
		return fmt.Errorf("wait for instance %s stopped: %w", nativeID, err)
	}
	return nil
}

func isInstanceNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "InvalidInstanceID.NotFound" || code == "InvalidInstanceID.Malformed"
	}
	return false
}

// normalizeEC2State maps EC2 state names onto the closed power-state set.
func normalizeEC2State(state string) reconcile.PowerState {
	switch state {
	case "running":
		return reconcile.PowerRunning
	case "stopped":
		return reconcile.PowerStopped
	case "pending", "stopping", "shutting-down":
		return reconcile.PowerTransitioning
	case "terminated":
		return reconcile.PowerTerminated
	default:
		return reconcile.PowerUnknown
	}
}
