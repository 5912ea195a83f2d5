package topology

// Membership is an immutable snapshot of which nodes are active and
// which are quarantined at a point in time. LiveNodes publishes a new
// Membership wholesale on every poller tick (copy-on-write) instead of
// mutating shared active/quarantined slices in place, so readers that
// grabbed a reference never observe a half-updated set.
//
// Invariants:
//  1. active and quarantined never share a URI.
//  2. active ∪ quarantined is non-empty once any poll has succeeded.
//  3. before the first successful poll, active = {seed}, quarantined = ∅.
type Membership struct {
	Active      []NodeURI
	Quarantined []NodeURI
	Scope       RoutingScope
	PollIndex   int
}

// seedOnly is the bootstrap membership before any /localnodes call has
// succeeded.
func seedOnly(seed NodeURI, scope RoutingScope) Membership {
	return Membership{
		Active:      []NodeURI{seed},
		Quarantined: nil,
		Scope:       scope,
		PollIndex:   0,
	}
}

// contains reports whether uri is present in either partition.
func (m Membership) contains(uri NodeURI) (active bool, quarantined bool) {
	for _, a := range m.Active {
		if a.Equals(uri) {
			return true, false
		}
	}
	for _, q := range m.Quarantined {
		if q.Equals(uri) {
			return false, true
		}
	}
	return false, false
}

// size returns |active ∪ quarantined|, the union PollIndex cycles
// over.
func (m Membership) size() int {
	return len(m.Active) + len(m.Quarantined)
}

// union returns active followed by quarantined — the order the poller
// cycles pollIndex through (prefer active; fall through to
// quarantined once active is exhausted this cycle).
func (m Membership) union() []NodeURI {
	out := make([]NodeURI, 0, m.size())
	out = append(out, m.Active...)
	out = append(out, m.Quarantined...)
	return out
}

// withMergedPoll rebuilds membership after a successful /localnodes
// poll that returned `reported` hosts: new hosts become active, hosts
// absent from `reported` move to quarantine, and previously
// quarantined hosts that reappear move back to active. An empty
// `reported` list leaves membership unchanged — a 2xx response with no
// hosts means "no nodes match this scope's filter from this target's
// point of view," not "every node is gone."
func (m Membership) withMergedPoll(reported []NodeURI) Membership {
	if len(reported) == 0 {
		return m
	}

	reportedSet := make(map[string]struct{}, len(reported))
	for _, r := range reported {
		reportedSet[r.String()] = struct{}{}
	}

	var active, quarantined []NodeURI
	for _, r := range reported {
		active = append(active, r)
	}
	for _, a := range m.Active {
		if _, ok := reportedSet[a.String()]; !ok {
			quarantined = append(quarantined, a)
		}
	}
	for _, q := range m.Quarantined {
		if _, ok := reportedSet[q.String()]; !ok {
			quarantined = append(quarantined, q)
		}
	}

	return Membership{
		Active:      dedupe(active),
		Quarantined: dedupe(quarantined),
		Scope:       m.Scope,
		PollIndex:   m.PollIndex,
	}
}

// withNodeQuarantined moves a single active node to quarantine after a
// failed poll against it. The last node is never removed: if this
// would empty active entirely, the node stays active.
func (m Membership) withNodeQuarantined(uri NodeURI) Membership {
	if len(m.Active) <= 1 {
		return m
	}

	var active, quarantined []NodeURI
	found := false
	for _, a := range m.Active {
		if !found && a.Equals(uri) {
			found = true
			continue
		}
		active = append(active, a)
	}
	if !found {
		return m
	}
	quarantined = append(quarantined, m.Quarantined...)
	quarantined = append(quarantined, uri)

	return Membership{
		Active:      active,
		Quarantined: dedupe(quarantined),
		Scope:       m.Scope,
		PollIndex:   m.PollIndex,
	}
}

// withPollIndex returns a copy advanced to the given poll index.
func (m Membership) withPollIndex(idx int) Membership {
	m.PollIndex = idx
	return m
}

// withScope returns a copy recorded under a (possibly weakened) scope.
func (m Membership) withScope(scope RoutingScope) Membership {
	m.Scope = scope
	return m
}

func dedupe(uris []NodeURI) []NodeURI {
	seen := make(map[string]struct{}, len(uris))
	out := make([]NodeURI, 0, len(uris))
	for _, u := range uris {
		if _, ok := seen[u.String()]; ok {
			continue
		}
		seen[u.String()] = struct{}{}
		out = append(out, u)
	}
	return out
}
