package topology

import (
	"math/rand"

	"github.com/scylladb/alternator-go-client/internal/clienterrors"
)

// ErrExhausted is returned by QueryPlan.Next once every candidate has
// been yielded. Callers should check HasNext first.
var ErrExhausted = clienterrors.RequestExhausted("topology: query plan exhausted")

// ErrInvalidArgument is returned by NewQueryPlan when both the active
// and the quarantined list are nil; one nil list is treated as empty.
var ErrInvalidArgument = clienterrors.InvalidArgument("topology: invalid argument")

// QueryPlan is an immutable, single-pass, resettable iterator over
// candidate nodes for one request: active nodes first (shuffled so
// concurrent requests don't all hammer the same first active node),
// then quarantined nodes (shuffled, last resort). It is not
// thread-safe — one plan serves one in-flight request at a time.
type QueryPlan struct {
	order  []NodeURI
	cursor int
}

// NewQueryPlan builds a plan from the given active/quarantined lists.
// A zero-value *rand.Rand (nil) uses a fresh, randomly seeded source; pass a
// seeded rand.New(rand.NewSource(seed)) for reproducible tests.
func NewQueryPlan(active, quarantined []NodeURI, rng *rand.Rand) (*QueryPlan, error) {
	if active == nil && quarantined == nil {
		return nil, ErrInvalidArgument
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	activeCopy := append([]NodeURI(nil), active...)
	quarantinedCopy := append([]NodeURI(nil), quarantined...)
	shuffle(activeCopy, rng)
	shuffle(quarantinedCopy, rng)

	order := make([]NodeURI, 0, len(activeCopy)+len(quarantinedCopy))
	order = append(order, activeCopy...)
	order = append(order, quarantinedCopy...)

	return &QueryPlan{order: order}, nil
}

// shuffle is a Fisher-Yates shuffle over the supplied rng.
func shuffle(uris []NodeURI, rng *rand.Rand) {
	for i := len(uris) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		uris[i], uris[j] = uris[j], uris[i]
	}
}

// HasNext reports whether Next would succeed.
func (p *QueryPlan) HasNext() bool {
	return p.cursor < len(p.order)
}

// Next returns the next candidate node, or ErrExhausted.
func (p *QueryPlan) Next() (NodeURI, error) {
	if !p.HasNext() {
		return NodeURI{}, ErrExhausted
	}
	next := p.order[p.cursor]
	p.cursor++
	return next, nil
}

// Remaining returns how many candidates are left to yield.
func (p *QueryPlan) Remaining() int {
	return len(p.order) - p.cursor
}

// Reset rewinds the cursor to the beginning without reshuffling.
func (p *QueryPlan) Reset() {
	p.cursor = 0
}

// Size returns the total number of candidates in the plan.
func (p *QueryPlan) Size() int {
	return len(p.order)
}
