// Package topology discovers and tracks the live nodes of a
// DynamoDB-compatible cluster starting from a single seed endpoint,
// and hands out a node per request via round-robin or an
// externally-computed partition-key index.
package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/internal/clienterrors"
	"github.com/scylladb/alternator-go-client/internal/obstrace"
)

// ErrMembershipUnavailable marks the transient condition where no
// successful poll has completed yet. It never escapes NextAsURI
// (which falls back to the seed) — it exists so tests and logging can
// name the condition.
var ErrMembershipUnavailable = errors.New("topology: no successful poll yet")

// Config wires a LiveNodes instance. Zero values for the duration
// fields fall back to the package defaults.
type Config struct {
	Seed             NodeURI
	Scope            RoutingScope // defaults to Cluster if zero-value
	UpdatePeriod     time.Duration
	PollerTimeout    time.Duration
	Logger           *zap.Logger
	Metrics          *Metrics
	Clock            clock.Clock
	HTTPTransport    http.RoundTripper // for tests; defaults to a keep-alive transport
}

const (
	defaultUpdatePeriod  = 10 * time.Second
	defaultPollerTimeout = 5 * time.Second
)

// LiveNodes owns the cluster membership state: the active and
// quarantined node lists, the round-robin cursor, and the background
// poller that keeps them current. One LiveNodes per client,
// constructed once and closed once.
type LiveNodes struct {
	seed          NodeURI
	updatePeriod  time.Duration
	pollerTimeout time.Duration
	logger        *zap.Logger
	metrics       *Metrics
	clock         clock.Clock
	httpClient    *http.Client
	tracer        *obstrace.Tracer

	membership atomic.Pointer[Membership]
	cursor     atomic.Uint64

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs a LiveNodes seeded with cfg.Seed. It performs no I/O:
// the requested routing scope is probed, and polling begins, only when
// Start is called.
func New(cfg Config) (*LiveNodes, error) {
	if cfg.Seed.IsZero() {
		return nil, clienterrors.InvalidArgument("topology: seed URI is required")
	}
	updatePeriod := cfg.UpdatePeriod
	if updatePeriod <= 0 {
		updatePeriod = defaultUpdatePeriod
	}
	pollerTimeout := cfg.PollerTimeout
	if pollerTimeout <= 0 {
		pollerTimeout = defaultPollerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	scope := cfg.Scope
	if scope.kind == ScopeCluster && scope.fallback == nil && scope.dc == "" {
		// zero value already equals Cluster(); nothing to normalize.
	}

	transport := cfg.HTTPTransport
	if transport == nil {
		transport = &http.Transport{
			MaxConnsPerHost:     1,
			MaxIdleConnsPerHost: 1,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	ln := &LiveNodes{
		seed:          cfg.Seed,
		updatePeriod:  updatePeriod,
		pollerTimeout: pollerTimeout,
		logger:        logger,
		metrics:       cfg.Metrics,
		clock:         clk,
		httpClient:    &http.Client{Transport: transport, Timeout: pollerTimeout},
		tracer:        obstrace.NewTracer("topology"),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	initial := seedOnly(cfg.Seed, scope)
	ln.membership.Store(&initial)
	return ln, nil
}

// Start resolves the routing scope against the live server, then
// launches the background poller. It must be called at most once.
func (ln *LiveNodes) Start(ctx context.Context) {
	requested := ln.membership.Load().Scope
	resolved := PickSupportedScope(ctx, ln, requested)
	if resolved.Kind() != requested.Kind() || resolved.DC() != requested.DC() || resolved.RackName() != requested.RackName() {
		ln.logger.Warn("routing scope unsupported by server, falling back",
			zap.String("requested", requested.String()),
			zap.String("effective", resolved.String()),
		)
		ln.metrics.recordScopeWeakened()
	}
	ln.mutateMembership(func(m Membership) Membership { return m.withScope(resolved) })

	go ln.pollLoop()
}

// Close signals the poller to stop and waits up to one update period
// for a clean exit before giving up and returning control to the
// caller; the goroutine still exits on its own shortly after.
func (ln *LiveNodes) Close(ctx context.Context) error {
	ln.once.Do(func() { close(ln.stopCh) })
	select {
	case <-ln.doneCh:
		return nil
	case <-ln.clock.After(ln.updatePeriod):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextAsURI atomically advances the round-robin cursor and returns the
// node at cursor mod |active| from the latest committed snapshot.
// Successive calls observe strictly monotonic cursor values, though
// concurrent membership churn means the mapping from cursor to node
// isn't guaranteed contiguous. Pre-bootstrap, when active
// is empty, it returns the seed rather than raising
// ErrMembershipUnavailable — the core never blocks a request path on a
// transient condition.
func (ln *LiveNodes) NextAsURI() NodeURI {
	m := ln.membership.Load()
	if len(m.Active) == 0 {
		return ln.seed
	}
	idx := ln.cursor.Add(1)
	return m.Active[idx%uint64(len(m.Active))]
}

// Snapshot returns the currently committed membership. The returned
// value is immutable; callers that need a shuffled iteration order
// should build a QueryPlan from it.
func (ln *LiveNodes) Snapshot() Membership {
	return *ln.membership.Load()
}

// GetLiveNodes returns the current active node list.
func (ln *LiveNodes) GetLiveNodes() []NodeURI {
	return append([]NodeURI(nil), ln.membership.Load().Active...)
}

// AnnotatedNode pairs a node URI with whether it is the client's
// original seed — useful for operators migrating traffic off a single
// bootstrap endpoint onto full cluster awareness.
type AnnotatedNode struct {
	URI    NodeURI
	IsSeed bool
}

// GetAlternatorLiveNodes returns the active nodes annotated with seed
// membership.
func (ln *LiveNodes) GetAlternatorLiveNodes() []AnnotatedNode {
	active := ln.membership.Load().Active
	out := make([]AnnotatedNode, len(active))
	for i, a := range active {
		out[i] = AnnotatedNode{URI: a, IsSeed: a.Equals(ln.seed)}
	}
	return out
}

// CheckIfRackDatacenterFeatureIsSupported issues a one-shot
// /localnodes?rack=*&dc=* probe and reports whether the server honors
// rack/dc filtering at all.
func (ln *LiveNodes) CheckIfRackDatacenterFeatureIsSupported(ctx context.Context) bool {
	ok, err := ln.ProbeScope(ctx, Rack("*", "*"))
	return err == nil && ok
}

// ProbeScope implements ScopeProber: issue one /localnodes call with
// the scope's filter parameters against the seed and report whether it
// yielded at least one node. During this startup-only use, an empty
// 2xx array is treated as "scope unsupported".
func (ln *LiveNodes) ProbeScope(ctx context.Context, scope RoutingScope) (bool, error) {
	hosts, status, err := ln.fetchLocalNodes(ctx, ln.seed, scope)
	if err != nil {
		return false, err
	}
	if status < 200 || status >= 300 {
		return false, fmt.Errorf("topology: scope probe got HTTP %d", status)
	}
	return len(hosts) > 0, nil
}

func (ln *LiveNodes) mutateMembership(f func(Membership) Membership) Membership {
	for {
		old := ln.membership.Load()
		next := f(*old)
		if ln.membership.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// fetchLocalNodes performs one GET against target's /localnodes
// endpoint, applying scope query parameters, and returns the raw host
// list plus HTTP status. The response body is always drained so
// keep-alive connections return to the pool even on non-2xx responses.
func (ln *LiveNodes) fetchLocalNodes(ctx context.Context, target NodeURI, scope RoutingScope) ([]string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, ln.pollerTimeout)
	defer cancel()

	url := target.String() + "/localnodes"
	if scope.Kind() == ScopeDatacenter || scope.Kind() == ScopeRack {
		url += "?dc=" + scope.DC()
		if scope.Kind() == ScopeRack {
			url += "&rack=" + scope.RackName()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := ln.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, nil
	}

	var hosts []string
	if err := json.NewDecoder(resp.Body).Decode(&hosts); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("topology: parsing /localnodes response: %w", err)
	}
	return hosts, resp.StatusCode, nil
}

// randomJitter returns a duration in [0, max) used to skew the
// poller's first tick so a fleet of freshly started clients doesn't
// thunder against the same seed node simultaneously.
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
