package metrics

import (
	"strings"
	"sync"

	"github.com/arloliu/fabric/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	groupEvents      *prometheus.CounterVec
	groupMembers     *prometheus.GaugeVec
	memberRefreshes  *prometheus.CounterVec
	mastership       *prometheus.GaugeVec
	rebalanceLatency *prometheus.HistogramVec
	rebalances       *prometheus.CounterVec
	rebalanceDropped *prometheus.CounterVec
	assignWrites     *prometheus.CounterVec
	partitions       *prometheus.GaugeVec
	assignChanges    *prometheus.CounterVec
	assigned         *prometheus.GaugeVec
	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	selections       *prometheus.CounterVec
	addresses        *prometheus.GaugeVec
	failOvers        *prometheus.CounterVec
	activeCalls      *prometheus.GaugeVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "fabric" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fabric"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.groupEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "group",
			Name:      "events_total",
			Help:      "Total group listener notifications by group and event.",
		}, []string{"group", "event"})
		p.groupMembers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "group",
			Name:      "members",
			Help:      "Current number of members in the group snapshot.",
		}, []string{"group"})
		p.memberRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "group",
			Name:      "member_refreshes_total",
			Help:      "Member registration refreshes by result (success,failure).",
		}, []string{"group", "result"})
		p.mastership = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "group",
			Name:      "is_master",
			Help:      "Whether this process holds the group mastership (1=master,0=not).",
		}, []string{"group"})

		p.rebalanceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "rebalance",
			Name:      "duration_seconds",
			Help:      "Duration of rebalance computations including assignment writes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"task"})
		p.rebalances = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rebalance",
			Name:      "attempts_total",
			Help:      "Rebalance attempts by task and result (success,failure).",
		}, []string{"task", "result"})
		p.rebalanceDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rebalance",
			Name:      "dropped_total",
			Help:      "Rebalance messages dropped because the executor queue was full.",
		}, []string{"task"})
		p.assignWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rebalance",
			Name:      "assignment_writes_total",
			Help:      "Per-member assignment writes by task and result.",
		}, []string{"task", "result"})
		p.partitions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "rebalance",
			Name:      "partitions",
			Help:      "Number of partitions seen by the last rebalance.",
		}, []string{"task"})

		p.assignChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "partition_changes_total",
			Help:      "Partitions started or stopped on this worker by kind (added,removed).",
		}, []string{"task", "kind"})
		p.assigned = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "assigned_partitions",
			Help:      "Number of partitions currently assigned to this worker.",
		}, []string{"task"})
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "state_transitions_total",
			Help:      "Task manager state transitions.",
		}, []string{"task", "from", "to"})
		p.stateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before transitioning out of it.",
			Buckets:   []float64{0.1, 1, 10, 60, 600, 3600},
		}, []string{"task", "from"})

		p.selections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loadbalance",
			Name:      "selections_total",
			Help:      "Endpoint selections by strategy and result (success,empty).",
		}, []string{"strategy", "result"})
		p.addresses = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "loadbalance",
			Name:      "alternate_addresses",
			Help:      "Current size of the alternate address list.",
		}, []string{"strategy"})
		p.failOvers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loadbalance",
			Name:      "failovers_total",
			Help:      "Fail-overs away from an address.",
		}, []string{"address"})
		p.activeCalls = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "loadbalance",
			Name:      "active_calls",
			Help:      "Calls currently holding a conduit.",
		}, []string{"strategy"})

		p.reg.MustRegister(
			p.groupEvents, p.groupMembers, p.memberRefreshes, p.mastership,
			p.rebalanceLatency, p.rebalances, p.rebalanceDropped, p.assignWrites, p.partitions,
			p.assignChanges, p.assigned, p.stateTransitions, p.stateDuration,
			p.selections, p.addresses, p.failOvers, p.activeCalls,
		)
	})
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// GroupMetrics implementation

// RecordGroupEvent increments the event counter.
func (p *PrometheusCollector) RecordGroupEvent(group string, event types.GroupEvent) {
	p.ensureRegistered()
	p.groupEvents.WithLabelValues(group, strings.ToLower(event.String())).Inc()
}

// RecordGroupMembers sets the member gauge.
func (p *PrometheusCollector) RecordGroupMembers(group string, count int) {
	p.ensureRegistered()
	p.groupMembers.WithLabelValues(group).Set(float64(count))
}

// RecordMembershipRefresh counts a refresh outcome.
func (p *PrometheusCollector) RecordMembershipRefresh(group string, success bool) {
	p.ensureRegistered()
	p.memberRefreshes.WithLabelValues(group, result(success)).Inc()
}

// RecordMastershipChange sets the mastership gauge.
func (p *PrometheusCollector) RecordMastershipChange(group string, isMaster bool) {
	p.ensureRegistered()
	v := 0.0
	if isMaster {
		v = 1
	}
	p.mastership.WithLabelValues(group).Set(v)
}

// RebalanceMetrics implementation

// RecordRebalanceDuration observes rebalance latency.
func (p *PrometheusCollector) RecordRebalanceDuration(taskID string, duration float64) {
	p.ensureRegistered()
	p.rebalanceLatency.WithLabelValues(taskID).Observe(duration)
}

// RecordRebalanceAttempt counts a rebalance outcome.
func (p *PrometheusCollector) RecordRebalanceAttempt(taskID string, success bool) {
	p.ensureRegistered()
	p.rebalances.WithLabelValues(taskID, result(success)).Inc()
}

// RecordRebalanceDropped counts a dropped rebalance message.
func (p *PrometheusCollector) RecordRebalanceDropped(taskID string) {
	p.ensureRegistered()
	p.rebalanceDropped.WithLabelValues(taskID).Inc()
}

// RecordAssignmentWrite counts a member assignment write outcome.
func (p *PrometheusCollector) RecordAssignmentWrite(taskID string, success bool) {
	p.ensureRegistered()
	p.assignWrites.WithLabelValues(taskID, result(success)).Inc()
}

// RecordPartitionCount sets the partition gauge.
func (p *PrometheusCollector) RecordPartitionCount(taskID string, count int) {
	p.ensureRegistered()
	p.partitions.WithLabelValues(taskID).Set(float64(count))
}

// WorkerMetrics implementation

// RecordAssignmentChange counts started and stopped partitions.
func (p *PrometheusCollector) RecordAssignmentChange(taskID string, added, removed int) {
	p.ensureRegistered()
	p.assignChanges.WithLabelValues(taskID, "added").Add(float64(added))
	p.assignChanges.WithLabelValues(taskID, "removed").Add(float64(removed))
}

// RecordAssignedPartitions sets the assigned partitions gauge.
func (p *PrometheusCollector) RecordAssignedPartitions(taskID string, count int) {
	p.ensureRegistered()
	p.assigned.WithLabelValues(taskID).Set(float64(count))
}

// RecordStateTransition counts a transition and observes time spent in the old state.
func (p *PrometheusCollector) RecordStateTransition(taskID string, from, to types.State, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(taskID, from.String(), to.String()).Inc()
	p.stateDuration.WithLabelValues(taskID, from.String()).Observe(duration)
}

// LoadBalanceMetrics implementation

// RecordEndpointSelection counts a selection outcome.
func (p *PrometheusCollector) RecordEndpointSelection(strategy string, success bool) {
	p.ensureRegistered()
	res := "success"
	if !success {
		res = "empty"
	}
	p.selections.WithLabelValues(strategy, res).Inc()
}

// RecordAlternateAddresses sets the address list gauge.
func (p *PrometheusCollector) RecordAlternateAddresses(strategy string, count int) {
	p.ensureRegistered()
	p.addresses.WithLabelValues(strategy).Set(float64(count))
}

// RecordFailOver counts a fail-over away from address.
func (p *PrometheusCollector) RecordFailOver(address string) {
	p.ensureRegistered()
	p.failOvers.WithLabelValues(address).Inc()
}

// RecordActiveCalls sets the active call gauge.
func (p *PrometheusCollector) RecordActiveCalls(strategy string, count int) {
	p.ensureRegistered()
	p.activeCalls.WithLabelValues(strategy).Set(float64(count))
}
