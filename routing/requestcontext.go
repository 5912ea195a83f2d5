package routing

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/scylladb/alternator-go-client/topology"
)

// slot is the per-request override cell that AffinityInterceptor
// writes and EndpointProvider reads and clears. It is an explicit
// object rather than a process-wide thread-local because request
// pipelines built on Go's context/goroutine model routinely hand a
// single request off between goroutines (retries, async middleware).
// id correlates log lines for the same request across the interceptor
// and the endpoint provider.
type slot struct {
	mu  sync.Mutex
	uri *topology.NodeURI
	id  string
}

type slotKey struct{}

// WithSlot installs a fresh, empty override slot into ctx, tagged with
// a new request ID. Call this once per request, before the request
// enters the middleware pipeline.
func WithSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, &slot{id: uuid.NewString()})
}

// RequestID returns the correlation ID assigned by WithSlot, or ""
// if ctx carries none.
func RequestID(ctx context.Context) string {
	s, ok := slotFrom(ctx)
	if !ok {
		return ""
	}
	return s.id
}

func slotFrom(ctx context.Context) (*slot, bool) {
	s, ok := ctx.Value(slotKey{}).(*slot)
	return s, ok
}

// setOverride stores uri in ctx's slot. It is a no-op (returns false)
// if ctx was not prepared with WithSlot.
func setOverride(ctx context.Context, uri topology.NodeURI) bool {
	s, ok := slotFrom(ctx)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uri = &uri
	return true
}

// takeOverride returns the slot's URI, if any, and clears it so a
// later call on the same request sees nothing set.
func takeOverride(ctx context.Context) (topology.NodeURI, bool) {
	s, ok := slotFrom(ctx)
	if !ok {
		return topology.NodeURI{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uri == nil {
		return topology.NodeURI{}, false
	}
	uri := *s.uri
	s.uri = nil
	return uri, true
}
