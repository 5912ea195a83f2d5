package topology

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gauges and counters LiveNodes publishes on every
// poller tick. A nil *Metrics is valid everywhere it's accepted — the
// zero value's methods are no-ops — so instrumentation stays optional
// without littering the poller with nil checks at every call site.
type Metrics struct {
	activeNodes      prometheus.Gauge
	quarantinedNodes prometheus.Gauge
	pollSuccesses    prometheus.Counter
	pollFailures     prometheus.Counter
	scopeWeakenings  prometheus.Counter
}

// NewMetrics registers the topology gauges/counters against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "topology", Name: "active_nodes",
			Help: "Number of cluster nodes currently considered active.",
		}),
		quarantinedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "topology", Name: "quarantined_nodes",
			Help: "Number of cluster nodes currently quarantined.",
		}),
		pollSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "topology", Name: "poll_successes_total",
			Help: "Successful /localnodes polls.",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "topology", Name: "poll_failures_total",
			Help: "Failed /localnodes polls (non-2xx, network, or parse errors).",
		}),
		scopeWeakenings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "topology", Name: "scope_weakenings_total",
			Help: "Times the routing scope fell back to a weaker level.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.activeNodes, m.quarantinedNodes, m.pollSuccesses, m.pollFailures, m.scopeWeakenings)
	}
	return m
}

func (m *Metrics) observeMembership(active, quarantined int) {
	if m == nil {
		return
	}
	m.activeNodes.Set(float64(active))
	m.quarantinedNodes.Set(float64(quarantined))
}

func (m *Metrics) recordPollSuccess() {
	if m == nil {
		return
	}
	m.pollSuccesses.Inc()
}

func (m *Metrics) recordPollFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *Metrics) recordScopeWeakened() {
	if m == nil {
		return
	}
	m.scopeWeakenings.Inc()
}
