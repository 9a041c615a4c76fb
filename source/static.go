package source

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/fabric/types"
)

// Static implements a partition source over an in-memory list of partitions.
type Static struct {
	mu          sync.RWMutex
	partitions  []types.Partition
	subscribers map[int]func(types.PartitionEvent)
	nextID      int
}

var _ types.PartitionSource = (*Static)(nil)

// NewStatic creates a new static partition source.
//
// Useful for testing and scenarios where partitions are known at startup.
//
// Example:
//
//	src := source.NewStatic([]types.Partition{{ID: "p1"}, {ID: "p2"}})
//	mgr, err := fabric.NewTaskManager(&cfg, conn, src)
func NewStatic(partitions []types.Partition) *Static {
	return &Static{
		partitions:  clonePartitions(partitions),
		subscribers: make(map[int]func(types.PartitionEvent)),
	}
}

// ListPartitions returns a copy of the current partitions.
//
// Returns:
//   - []types.Partition: Current partitions
//   - error: Always nil (never fails)
func (s *Static) ListPartitions(_ context.Context) ([]types.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clonePartitions(s.partitions), nil
}

// Subscribe registers fn and delivers PartitionsInitialized to it at once.
func (s *Static) Subscribe(_ context.Context, fn func(types.PartitionEvent)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	fn(types.PartitionEvent{Type: types.PartitionsInitialized})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}, nil
}

// Update replaces the partition list and notifies subscribers of the difference.
//
// A partition whose data changed is reported as added again.
//
// Example:
//
//	src := source.NewStatic(initialPartitions)
//	// Later: add more partitions
//	src.Update(expandedPartitions)
func (s *Static) Update(partitions []types.Partition) {
	s.mu.Lock()
	old := s.partitions
	s.partitions = clonePartitions(partitions)
	subs := slices.Collect(maps.Values(s.subscribers))
	s.mu.Unlock()

	events := diffEvents(old, partitions)
	for _, fn := range subs {
		for _, ev := range events {
			fn(ev)
		}
	}
}

func diffEvents(old, cur []types.Partition) []types.PartitionEvent {
	oldByID := make(map[string]types.Partition, len(old))
	for _, p := range old {
		oldByID[p.ID] = p
	}

	var events []types.PartitionEvent
	seen := make(map[string]bool, len(cur))
	for _, p := range cur {
		seen[p.ID] = true
		prev, ok := oldByID[p.ID]
		if !ok || !maps.Equal(prev.Data, p.Data) {
			events = append(events, types.PartitionEvent{Type: types.PartitionAdded, PartitionID: p.ID})
		}
	}
	for _, p := range old {
		if !seen[p.ID] {
			events = append(events, types.PartitionEvent{Type: types.PartitionRemoved, PartitionID: p.ID})
		}
	}

	return events
}

func clonePartitions(in []types.Partition) []types.Partition {
	out := make([]types.Partition, len(in))
	for i, p := range in {
		out[i] = types.Partition{ID: p.ID, Data: maps.Clone(p.Data)}
	}

	return out
}
