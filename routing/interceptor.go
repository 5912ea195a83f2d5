package routing

import (
	"context"

	"github.com/aws/smithy-go/middleware"
	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/hashing"
	"github.com/scylladb/alternator-go-client/pkresolver"
	"github.com/scylladb/alternator-go-client/topology"
)

// MembershipSource is the subset of LiveNodes the interceptor needs to
// turn a partition-key hash into a target node.
type MembershipSource interface {
	Snapshot() topology.Membership
}

// AffinityInterceptor runs once per outgoing request, before endpoint
// resolution. When the configured mode and request shape call for
// key-affinity routing and the table's partition key is already
// known, it computes the target node and installs it in the
// request's override slot; otherwise it triggers background
// discovery (if needed) and leaves routing to round-robin.
type AffinityInterceptor struct {
	mode     AffinityMode
	resolver *pkresolver.Resolver
	nodes    MembershipSource
	client   pkresolver.DescribeTableAPI
	logger   *zap.Logger
}

// NewAffinityInterceptor wires an interceptor for the given mode.
// logger may be nil, in which case decisions go unlogged.
func NewAffinityInterceptor(mode AffinityMode, resolver *pkresolver.Resolver, nodes MembershipSource, client pkresolver.DescribeTableAPI, logger *zap.Logger) *AffinityInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AffinityInterceptor{mode: mode, resolver: resolver, nodes: nodes, client: client, logger: logger}
}

// ID satisfies middleware.Initializer.
func (a *AffinityInterceptor) ID() string { return "AffinityInterceptor" }

// HandleInitialize satisfies middleware.InitializeMiddleware. It never
// fails the request on its own account — any problem here just
// forgoes the override and falls through to round-robin.
func (a *AffinityInterceptor) HandleInitialize(ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler) (middleware.InitializeOutput, middleware.Metadata, error) {
	if _, ok := slotFrom(ctx); !ok {
		ctx = WithSlot(ctx)
	}
	if a.mode != ModeNone {
		a.apply(ctx, in.Parameters)
	}
	return next.HandleInitialize(ctx, in)
}

func (a *AffinityInterceptor) apply(ctx context.Context, req interface{}) {
	if !ShouldApply(a.mode, req) {
		return
	}
	table, ok := TableName(req)
	if !ok {
		return
	}

	pkName, ok := a.resolver.Get(table)
	if !ok {
		a.resolver.TriggerDiscovery(table, a.client)
		return
	}

	value, ok := ExtractPartitionKey(req, pkName)
	if !ok || hashing.IsNull(value) {
		return
	}

	h, hashErr := hashing.Hash(value)
	if hashErr != nil {
		return
	}

	snapshot := a.nodes.Snapshot()
	if len(snapshot.Active) == 0 {
		return
	}
	target := snapshot.Active[h%uint64(len(snapshot.Active))]
	if setOverride(ctx, target) {
		a.logger.Debug("affinity override",
			zap.String("request_id", RequestID(ctx)),
			zap.String("table", table),
			zap.String("target", target.String()))
	}
}
