package topology

import (
	"context"

	"go.uber.org/zap"
)

// pollLoop runs on its own goroutine for the lifetime of the
// LiveNodes instance. Each tick it polls exactly one node chosen by
// advancing the poll index through the active-then-quarantined union,
// merges a successful response into membership, or quarantines the
// polled node on failure.
func (ln *LiveNodes) pollLoop() {
	defer close(ln.doneCh)

	jitter := randomJitter(ln.updatePeriod / 10)
	timer := ln.clock.Timer(jitter)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ln.stopCh:
		return
	}

	ticker := ln.clock.Ticker(ln.updatePeriod)
	defer ticker.Stop()

	ln.tick()
	for {
		select {
		case <-ticker.C:
			ln.tick()
		case <-ln.stopCh:
			return
		}
	}
}

// tick performs one poll cycle: pick a target node from the current
// union of active and quarantined nodes, fetch its /localnodes view,
// and fold the result into membership.
func (ln *LiveNodes) tick() {
	snapshot := ln.Snapshot()
	union := snapshot.union()
	if len(union) == 0 {
		return
	}

	idx := snapshot.PollIndex % len(union)
	target := union[idx]

	ctx, cancel := context.WithTimeout(context.Background(), ln.pollerTimeout)
	defer cancel()

	var hosts []string
	var status int
	traceErr := ln.tracer.TracePoll(ctx, target.String(), func(tctx context.Context) error {
		var ferr error
		hosts, status, ferr = ln.fetchLocalNodes(tctx, target, snapshot.Scope)
		return ferr
	})
	err := traceErr
	nextIdx := (idx + 1) % len(union)

	if err != nil || status < 200 || status >= 300 {
		ln.logger.Debug("poll failed",
			zap.String("target", target.String()),
			zap.Int("status", status),
			zap.Error(err),
		)
		ln.metrics.recordPollFailure()
		next := ln.mutateMembership(func(m Membership) Membership {
			return m.withNodeQuarantined(target).withPollIndex(nextIdx)
		})
		ln.metrics.observeMembership(len(next.Active), len(next.Quarantined))
		return
	}

	reported, err := ln.resolveReportedHosts(target, hosts)
	if err != nil {
		ln.logger.Warn("poll returned unparseable host list",
			zap.String("target", target.String()),
			zap.Error(err),
		)
		ln.metrics.recordPollFailure()
		next := ln.mutateMembership(func(m Membership) Membership {
			return m.withNodeQuarantined(target).withPollIndex(nextIdx)
		})
		ln.metrics.observeMembership(len(next.Active), len(next.Quarantined))
		return
	}

	ln.metrics.recordPollSuccess()
	next := ln.mutateMembership(func(m Membership) Membership {
		return m.withMergedPoll(reported).withPollIndex(nextIdx)
	})
	ln.metrics.observeMembership(len(next.Active), len(next.Quarantined))
}

// resolveReportedHosts turns the bare hostnames /localnodes returned
// into full NodeURIs, reusing the scheme and port of the node that was
// polled (the cluster is assumed to use a uniform scheme/port across
// nodes).
func (ln *LiveNodes) resolveReportedHosts(polled NodeURI, hosts []string) ([]NodeURI, error) {
	scheme, port, err := polled.schemeAndPort()
	if err != nil {
		return nil, err
	}

	out := make([]NodeURI, 0, len(hosts))
	for _, h := range hosts {
		uri, err := newNodeURIFromHost(h, scheme, port)
		if err != nil {
			continue
		}
		out = append(out, uri)
	}
	return out, nil
}
