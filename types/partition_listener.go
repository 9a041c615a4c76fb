package types

import "context"

// PartitionListener reacts to partitions being assigned to or removed from this worker.
//
// The TaskManager calls Stop with the removed partitions, then Start with the
// added partitions, every time the worker's own assignment record changes.
// Implementations must honor:
//   - Start is idempotent for partitions already started
//   - Stop on partitions never started is a no-op (logged)
//   - Destroy releases everything the listener still holds
type PartitionListener interface {
	// Type returns the listener type tag used for configuration (e.g., "template").
	Type() string

	// Start begins work for the given partitions.
	Start(ctx context.Context, taskID, definition string, partitions []Partition) error

	// Stop ends work for the given partitions.
	Stop(ctx context.Context, taskID, definition string, partitions []Partition) error

	// Destroy releases all resources held by the listener.
	Destroy(ctx context.Context) error
}
