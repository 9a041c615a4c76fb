package listener

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/arloliu/fabric/types"
)

// tracker is the started-partition set shared by the built-in listeners.
type tracker struct {
	mu      sync.Mutex
	started map[string]types.Partition
}

func newTracker() *tracker {
	return &tracker{started: make(map[string]types.Partition)}
}

// fresh returns the partitions not started yet.
func (t *tracker) fresh(partitions []types.Partition) []types.Partition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.Partition
	for _, p := range partitions {
		if _, ok := t.started[p.ID]; !ok {
			out = append(out, p.WithData())
		}
	}

	return out
}

// known splits partitions into started and never-started ones.
func (t *tracker) known(partitions []types.Partition) (started, unknown []types.Partition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range partitions {
		if sp, ok := t.started[p.ID]; ok {
			started = append(started, sp)
		} else {
			unknown = append(unknown, p)
		}
	}

	return started, unknown
}

func (t *tracker) add(partitions ...types.Partition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range partitions {
		t.started[p.ID] = p.WithData()
	}
}

func (t *tracker) remove(partitions ...types.Partition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range partitions {
		delete(t.started, p.ID)
	}
}

// ids returns the started partition ids, sorted.
func (t *tracker) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Sorted(maps.Keys(t.started))
}

func (t *tracker) all() []types.Partition {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := slices.Collect(maps.Values(t.started))
	slices.SortFunc(out, func(a, b types.Partition) int { return strings.Compare(a.ID, b.ID) })

	return out
}
