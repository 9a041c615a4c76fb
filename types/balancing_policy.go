package types

import "context"

// BalancingPolicy computes a partition assignment and writes it back to the
// members' worker node records.
//
// The master of a task group calls Rebalance whenever the partition set or the
// worker group changes. Policies must:
//   - Recompute from scratch (no incremental patching)
//   - Skip without writing when members is empty
//   - Write every member's list, including empty ones, overwriting prior records
//   - Keep writing remaining members when one member's write fails
type BalancingPolicy interface {
	// Type returns the policy type tag (e.g., "even").
	Type() string

	// Rebalance assigns partitionIDs over memberIDs for taskID.
	//
	// Parameters:
	//   - ctx: Context for cancellation of assignment writes
	//   - taskID: Task whose partitions are being assigned
	//   - partitionIDs: Current partitions, in the order to be assigned
	//   - memberIDs: Current members, in the order to be assigned
	//
	// Returns:
	//   - error: Joined per-member write errors (wrapping ErrAssignmentWrite), nil on success
	Rebalance(ctx context.Context, taskID string, partitionIDs, memberIDs []string) error
}

// AssignmentWriter persists one member's partition assignment.
//
// Implemented by the worker registry; used by balancing policies.
type AssignmentWriter interface {
	// WriteAssignment overwrites the assignment record of member for taskID.
	WriteAssignment(ctx context.Context, taskID, member string, partitionIDs []string) error
}
