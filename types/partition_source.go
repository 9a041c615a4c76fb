package types

import "context"

// PartitionEventType classifies partition source notifications.
type PartitionEventType int

const (
	// PartitionsInitialized is delivered once the source finished its initial listing.
	PartitionsInitialized PartitionEventType = iota

	// PartitionAdded is delivered when a partition appears or its data changes.
	PartitionAdded

	// PartitionRemoved is delivered when a partition disappears.
	PartitionRemoved
)

// String returns the string representation of the event type.
func (t PartitionEventType) String() string {
	switch t {
	case PartitionsInitialized:
		return "Initialized"
	case PartitionAdded:
		return "Added"
	case PartitionRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// PartitionEvent is a change notification from a PartitionSource.
type PartitionEvent struct {
	Type PartitionEventType

	// PartitionID is empty for PartitionsInitialized.
	PartitionID string
}

// PartitionSource discovers partitions and notifies about changes.
//
// Implementations can be backed by:
//   - A watched key prefix in the coordination store (source.KV)
//   - A fixed list (source.Static)
//   - Any custom discovery logic
type PartitionSource interface {
	// ListPartitions returns all current partitions.
	//
	// Partitions with missing or malformed data are returned with an empty data
	// map rather than failing the listing.
	ListPartitions(ctx context.Context) ([]Partition, error)

	// Subscribe registers fn for change notifications until ctx is cancelled or
	// the returned stop function is called. fn must not block.
	Subscribe(ctx context.Context, fn func(PartitionEvent)) (stop func(), err error)
}
