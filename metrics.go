package qbdt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

/*
Metrics counts the work registers do. The plain fields are kept for
ExportMetrics; the same events feed Prometheus collectors once Register
has been called with a registerer.
*/
type Metrics struct {
	mu              sync.RWMutex
	GatesApplied    int64
	GatesDeferred   int64
	Flushes         int64
	Traversals      int64
	Delegations     int64
	Measurements    int64
	BackendSwitches int64
	LastNodeCount   int

	gates        *prometheus.CounterVec
	flushes      prometheus.Counter
	traversals   *prometheus.CounterVec
	delegations  prometheus.Counter
	measurements prometheus.Counter
	switches     prometheus.Counter
	nodes        prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		gates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "gates_total",
			Help:      "Single-qubit gates requested, by whether they were deferred.",
		}, []string{"mode"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "shard_flushes_total",
			Help:      "Pending gates committed into the tree.",
		}),
		traversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "traversals_total",
			Help:      "Conversions between tree and flat form.",
		}, []string{"direction"}),
		delegations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "delegations_total",
			Help:      "Operations executed on the flat engine on behalf of the tree.",
		}),
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "measurements_total",
			Help:      "Measurements and samples taken.",
		}),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qbdt",
			Name:      "backend_switches_total",
			Help:      "Hybrid register moves between tree and flat engine.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qbdt",
			Name:      "tree_nodes",
			Help:      "Distinct nodes in the most recently measured tree.",
		}),
	}
}

// Register adds every collector to reg. Collectors that are already
// registered are left in place.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.gates, m.flushes, m.traversals, m.delegations, m.measurements, m.switches, m.nodes,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	return nil
}

func (m *Metrics) recordGate(deferred bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if deferred {
		m.GatesDeferred++
		m.gates.WithLabelValues("deferred").Inc()
		return
	}
	m.GatesApplied++
	m.gates.WithLabelValues("applied").Inc()
}

func (m *Metrics) recordFlush() {
	m.mu.Lock()
	m.Flushes++
	m.mu.Unlock()
	m.flushes.Inc()
}

func (m *Metrics) recordTraversal(direction string) {
	m.mu.Lock()
	m.Traversals++
	m.mu.Unlock()
	m.traversals.WithLabelValues(direction).Inc()
}

func (m *Metrics) recordDelegation() {
	m.mu.Lock()
	m.Delegations++
	m.mu.Unlock()
	m.delegations.Inc()
}

func (m *Metrics) recordMeasurement() {
	m.mu.Lock()
	m.Measurements++
	m.mu.Unlock()
	m.measurements.Inc()
}

func (m *Metrics) recordSwitch() {
	m.mu.Lock()
	m.BackendSwitches++
	m.mu.Unlock()
	m.switches.Inc()
}

func (m *Metrics) recordNodeCount(n int) {
	m.mu.Lock()
	m.LastNodeCount = n
	m.mu.Unlock()
	m.nodes.Set(float64(n))
}

func (m *Metrics) ExportMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"gates_applied":    m.GatesApplied,
		"gates_deferred":   m.GatesDeferred,
		"flushes":          m.Flushes,
		"traversals":       m.Traversals,
		"delegations":      m.Delegations,
		"measurements":     m.Measurements,
		"backend_switches": m.BackendSwitches,
		"last_node_count":  m.LastNodeCount,
	}
}
