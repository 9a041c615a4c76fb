package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	GroupMetrics
	RebalanceMetrics
	WorkerMetrics
	LoadBalanceMetrics
}

// GroupMetrics defines metrics for group membership operations.
type GroupMetrics interface {
	// RecordGroupEvent records a listener notification.
	//
	// Parameters:
	//   - group: Group name
	//   - event: Event kind ("connected", "disconnected", "changed")
	RecordGroupEvent(group string, event GroupEvent)

	// RecordGroupMembers sets the current member count of a group (gauge metric).
	RecordGroupMembers(group string, count int)

	// RecordMembershipRefresh records a member refresh attempt.
	//
	// Parameters:
	//   - group: Group name
	//   - success: true if the member record was refreshed, false otherwise
	RecordMembershipRefresh(group string, success bool)

	// RecordMastershipChange records a change of this process's mastership.
	RecordMastershipChange(group string, isMaster bool)
}

// RebalanceMetrics defines metrics for the rebalancer.
type RebalanceMetrics interface {
	// RecordRebalanceDuration records the time taken for a rebalance operation.
	//
	// Parameters:
	//   - taskID: Task identifier
	//   - duration: Time taken in seconds
	RecordRebalanceDuration(taskID string, duration float64)

	// RecordRebalanceAttempt records a rebalance attempt (success or failure).
	RecordRebalanceAttempt(taskID string, success bool)

	// RecordRebalanceDropped records a rebalance message dropped because the queue was full.
	RecordRebalanceDropped(taskID string)

	// RecordAssignmentWrite records a single member assignment write.
	RecordAssignmentWrite(taskID string, success bool)

	// RecordPartitionCount sets the current partition count of a task (gauge metric).
	RecordPartitionCount(taskID string, count int)
}

// WorkerMetrics defines metrics for the local worker's partition lifecycle.
type WorkerMetrics interface {
	// RecordAssignmentChange records an applied assignment delta.
	//
	// Parameters:
	//   - taskID: Task identifier
	//   - added: Number of partitions started
	//   - removed: Number of partitions stopped
	RecordAssignmentChange(taskID string, added, removed int)

	// RecordAssignedPartitions sets the number of partitions this worker runs (gauge metric).
	RecordAssignedPartitions(taskID string, count int)

	// RecordStateTransition records a task manager state transition.
	RecordStateTransition(taskID string, from, to State, duration float64)
}

// LoadBalanceMetrics defines metrics for endpoint selection.
type LoadBalanceMetrics interface {
	// RecordEndpointSelection records a selection attempt by a load balance strategy.
	//
	// Parameters:
	//   - strategy: Strategy type tag ("random", "first-one", "round-robin")
	//   - success: false when no endpoint was available
	RecordEndpointSelection(strategy string, success bool)

	// RecordAlternateAddresses sets the current address list size (gauge metric).
	RecordAlternateAddresses(strategy string, count int)

	// RecordFailOver records a fail-over to another address.
	RecordFailOver(address string)

	// RecordActiveCalls sets the number of calls holding a conduit (gauge metric).
	RecordActiveCalls(strategy string, count int)
}
