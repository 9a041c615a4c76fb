// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/fabric/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. It is the default collector of every fabric component.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	mgr, err := fabric.NewTaskManager(&cfg, conn, src, fabric.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// GroupMetrics implementation

// RecordGroupEvent discards the group event metric.
func (n *NopMetrics) RecordGroupEvent(_ string, _ types.GroupEvent) {}

// RecordGroupMembers discards the member count metric.
func (n *NopMetrics) RecordGroupMembers(_ string, _ int) {}

// RecordMembershipRefresh discards the refresh metric.
func (n *NopMetrics) RecordMembershipRefresh(_ string, _ bool) {}

// RecordMastershipChange discards the mastership metric.
func (n *NopMetrics) RecordMastershipChange(_ string, _ bool) {}

// RebalanceMetrics implementation

// RecordRebalanceDuration discards the rebalance duration metric.
func (n *NopMetrics) RecordRebalanceDuration(_ string, _ float64) {}

// RecordRebalanceAttempt discards the rebalance attempt metric.
func (n *NopMetrics) RecordRebalanceAttempt(_ string, _ bool) {}

// RecordRebalanceDropped discards the dropped rebalance metric.
func (n *NopMetrics) RecordRebalanceDropped(_ string) {}

// RecordAssignmentWrite discards the assignment write metric.
func (n *NopMetrics) RecordAssignmentWrite(_ string, _ bool) {}

// RecordPartitionCount discards the partition count metric.
func (n *NopMetrics) RecordPartitionCount(_ string, _ int) {}

// WorkerMetrics implementation

// RecordAssignmentChange discards the assignment change metric.
func (n *NopMetrics) RecordAssignmentChange(_ string, _, _ int) {}

// RecordAssignedPartitions discards the assigned partitions metric.
func (n *NopMetrics) RecordAssignedPartitions(_ string, _ int) {}

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ string, _, _ types.State, _ float64) {}

// LoadBalanceMetrics implementation

// RecordEndpointSelection discards the endpoint selection metric.
func (n *NopMetrics) RecordEndpointSelection(_ string, _ bool) {}

// RecordAlternateAddresses discards the address list size metric.
func (n *NopMetrics) RecordAlternateAddresses(_ string, _ int) {}

// RecordFailOver discards the fail-over metric.
func (n *NopMetrics) RecordFailOver(_ string) {}

// RecordActiveCalls discards the active call gauge.
func (n *NopMetrics) RecordActiveCalls(_ string, _ int) {}

// OrNop returns m, or a NopMetrics when m is nil.
func OrNop(m types.MetricsCollector) types.MetricsCollector {
	if m == nil {
		return NewNop()
	}

	return m
}
