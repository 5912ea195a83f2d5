// Package clientbuilder wires the topology, partition-key, and
// routing packages into a ready-to-use DynamoDB client, the way
// dependency-injected providers would if code generation were in the
// loop — here hand-written since nothing in this build generates
// them.
package clientbuilder

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go/middleware"
	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/clientconfig"
	"github.com/scylladb/alternator-go-client/pkresolver"
	"github.com/scylladb/alternator-go-client/routing"
	"github.com/scylladb/alternator-go-client/topology"
)

// Client bundles the assembled DynamoDB client with the topology and
// discovery components backing it, so callers can introspect live
// membership or pre-register partition keys without reaching into the
// SDK client's internals.
type Client struct {
	DynamoDB *dynamodb.Client
	Nodes    *topology.LiveNodes
	PKCache  *pkresolver.Resolver

	cloudWatch *topology.CloudWatchPublisher
	logger     *zap.Logger
}

// ProvideLogger builds the structured logger every other component
// logs through.
func ProvideLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// ProvideLiveNodes constructs and starts the membership poller for
// opts.SeedNode.
func ProvideLiveNodes(ctx context.Context, opts clientconfig.Options, logger *zap.Logger, metrics *topology.Metrics) (*topology.LiveNodes, error) {
	opts = opts.WithDefaults()
	seed, err := topology.NewNodeURI(opts.SeedNode)
	if err != nil {
		return nil, fmt.Errorf("clientbuilder: invalid seed node: %w", err)
	}

	scope := topology.Cluster()
	switch {
	case opts.Rack != "":
		scope = topology.Rack(opts.Datacenter, opts.Rack)
	case opts.Datacenter != "":
		scope = topology.Datacenter(opts.Datacenter)
	}

	nodes, err := topology.New(topology.Config{
		Seed:          seed,
		Scope:         scope,
		UpdatePeriod:  opts.UpdatePeriod,
		PollerTimeout: opts.PollerTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	nodes.Start(ctx)
	return nodes, nil
}

// ProvidePartitionKeyResolver constructs the partition-key cache,
// pre-seeded with any caller-supplied table -> pk mappings.
func ProvidePartitionKeyResolver(opts clientconfig.Options, logger *zap.Logger) *pkresolver.Resolver {
	return pkresolver.New(logger, opts.PKInfoPerTable)
}

// lazyDescribeTableAPI defers to a *dynamodb.Client that doesn't
// exist yet at the point the affinity interceptor is constructed —
// the client's own middleware stack needs the interceptor before
// dynamodb.NewFromConfig returns the client the interceptor will call
// DescribeTable on.
type lazyDescribeTableAPI struct {
	client *dynamodb.Client
}

func (l *lazyDescribeTableAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return l.client.DescribeTable(ctx, params, optFns...)
}

// ProvideDynamoDBClient builds a *dynamodb.Client whose endpoint
// resolution and per-request routing are driven by nodes and
// resolver rather than the SDK's default single-endpoint behavior.
func ProvideDynamoDBClient(ctx context.Context, opts clientconfig.Options, nodes *topology.LiveNodes, resolver *pkresolver.Resolver, logger *zap.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("clientbuilder: loading AWS config: %w", err)
	}

	mode := opts.AffinityMode()
	endpointProvider := routing.NewEndpointProvider(nodes)
	describeTableAPI := &lazyDescribeTableAPI{}
	interceptor := routing.NewAffinityInterceptor(mode, resolver, nodes, describeTableAPI, logger)

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.EndpointResolverV2 = endpointProvider
		o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
			return stack.Initialize.Add(interceptor, middleware.Before)
		})
	})
	describeTableAPI.client = client

	return client, nil
}

// ProvideCloudWatchPublisher builds a CloudWatch publisher for nodes
// under opts.CloudWatchNamespace, or nil if the caller didn't opt in.
func ProvideCloudWatchPublisher(ctx context.Context, opts clientconfig.Options, nodes *topology.LiveNodes, logger *zap.Logger) (*topology.CloudWatchPublisher, error) {
	opts = opts.WithDefaults()
	if opts.CloudWatchNamespace == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("clientbuilder: loading AWS config for cloudwatch: %w", err)
	}
	cwClient := cloudwatch.NewFromConfig(awsCfg)
	pub := topology.NewCloudWatchPublisher(cwClient, opts.CloudWatchNamespace, nodes, opts.CloudWatchPublishInterval, nil, logger)
	pub.Start()
	return pub, nil
}

// New assembles a full Client from opts: validates the options,
// builds the logger, starts the live-node poller, constructs the
// partition-key resolver, and wires a DynamoDB client whose endpoint
// resolution and request routing run through them.
func New(ctx context.Context, opts clientconfig.Options, logger *zap.Logger) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	if logger == nil {
		var err error
		logger, err = ProvideLogger(false)
		if err != nil {
			return nil, fmt.Errorf("clientbuilder: building logger: %w", err)
		}
	}

	nodes, err := ProvideLiveNodes(ctx, opts, logger, nil)
	if err != nil {
		return nil, err
	}

	resolver := ProvidePartitionKeyResolver(opts, logger)

	dynamoClient, err := ProvideDynamoDBClient(ctx, opts, nodes, resolver, logger)
	if err != nil {
		resolver.Shutdown(ctx)
		nodes.Close(ctx)
		return nil, err
	}

	cloudWatch, err := ProvideCloudWatchPublisher(ctx, opts, nodes, logger)
	if err != nil {
		resolver.Shutdown(ctx)
		nodes.Close(ctx)
		return nil, err
	}

	return &Client{
		DynamoDB:   dynamoClient,
		Nodes:      nodes,
		PKCache:    resolver,
		cloudWatch: cloudWatch,
		logger:     logger,
	}, nil
}

// Close stops the CloudWatch publisher (if any), then drains the
// partition-key discovery worker and the live-node poller, in that
// order, each bounded by ctx.
func (c *Client) Close(ctx context.Context) error {
	if c.cloudWatch != nil {
		c.cloudWatch.Close(ctx)
	}
	resolverErr := c.PKCache.Shutdown(ctx)
	nodesErr := c.Nodes.Close(ctx)
	if resolverErr != nil {
		return resolverErr
	}
	return nodesErr
}
