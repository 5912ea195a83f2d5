package routing

import (
	"context"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/scylladb/alternator-go-client/topology"
)

// NodeSource is the subset of LiveNodes the endpoint provider needs:
// a non-blocking, always-successful next-node selection.
type NodeSource interface {
	NextAsURI() topology.NodeURI
}

// EndpointProvider implements dynamodb.EndpointResolverV2: on every
// request it prefers the per-request override installed by
// AffinityInterceptor, falling back to round-robin over the live node
// set. It never returns an error — an unreachable cluster is a
// transport-layer concern, not an endpoint-resolution one.
type EndpointProvider struct {
	nodes NodeSource
}

// NewEndpointProvider wraps nodes for use as a dynamodb client's
// EndpointResolverV2.
func NewEndpointProvider(nodes NodeSource) *EndpointProvider {
	return &EndpointProvider{nodes: nodes}
}

// ResolveEndpoint satisfies dynamodb.EndpointResolverV2.
func (p *EndpointProvider) ResolveEndpoint(ctx context.Context, params dynamodb.EndpointParameters) (smithyendpoints.Endpoint, error) {
	target, ok := takeOverride(ctx)
	if !ok {
		target = p.nodes.NextAsURI()
	}

	u, err := url.Parse(target.String())
	if err != nil {
		return smithyendpoints.Endpoint{}, err
	}
	return smithyendpoints.Endpoint{URI: *u}, nil
}
