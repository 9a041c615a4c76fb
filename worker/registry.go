// Package worker persists task worker nodes: each worker's URL and the
// partitions assigned to it, one record per container and task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/metrics"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/internal/watch"
	"github.com/arloliu/fabric/types"
)

// Registry reads and writes worker node records in a persistent bucket.
//
// It is the AssignmentWriter of the balancing policies. When a group is
// attached, assignment records carry the URL the worker published in its
// group payload.
type Registry struct {
	kv      jetstream.KeyValue
	keys    kvutil.Keys
	group   types.Group
	logger  types.Logger
	metrics types.MetricsCollector
}

var _ types.AssignmentWriter = (*Registry)(nil)

// NewRegistry creates a registry.
//
// Parameters:
//   - kv: Persistent bucket (see kvutil.RegistryBucket)
//   - keys: Registry key layout
//   - group: Task worker group used to resolve worker URLs (nil to keep stored URLs)
//   - logger: Logger (nil for no-op)
//   - metrics: Metrics collector (nil for no-op)
func NewRegistry(kv jetstream.KeyValue, keys kvutil.Keys, group types.Group, logger types.Logger, m types.MetricsCollector) *Registry {
	return &Registry{
		kv:      kv,
		keys:    keys,
		group:   group,
		logger:  logging.OrNop(logger),
		metrics: metrics.OrNop(m),
	}
}

// Publish writes node as the record of node.Container for taskID.
func (r *Registry) Publish(ctx context.Context, taskID string, node types.WorkerNode) error {
	data, err := node.Encode()
	if err != nil {
		return err
	}

	if _, err := r.kv.Put(ctx, r.keys.WorkerNode(node.Container, taskID), data); err != nil {
		return natsutil.Classify(fmt.Errorf("failed to publish worker node %s/%s: %w", node.Container, taskID, err))
	}

	return nil
}

// WriteAssignment overwrites member's assigned partitions for taskID.
//
// Returns:
//   - error: Wrapping types.ErrAssignmentWrite on failure
func (r *Registry) WriteAssignment(ctx context.Context, taskID, member string, partitionIDs []string) error {
	node := types.WorkerNode{
		Container:  member,
		URL:        r.url(ctx, taskID, member),
		Partitions: slices.Clone(partitionIDs),
	}

	err := r.Publish(ctx, taskID, node)
	r.metrics.RecordAssignmentWrite(taskID, err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrAssignmentWrite, err)
	}

	r.logger.Debug("assignment written", "task", taskID, "member", member, "partitions", len(partitionIDs))

	return nil
}

// Read returns the record of container for taskID.
//
// Returns:
//   - types.WorkerNode: Stored node
//   - bool: false if no record exists
//   - error: Store or decoding error
func (r *Registry) Read(ctx context.Context, containerID, taskID string) (types.WorkerNode, bool, error) {
	entry, err := r.kv.Get(ctx, r.keys.WorkerNode(containerID, taskID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.WorkerNode{}, false, nil
		}

		return types.WorkerNode{}, false, natsutil.Classify(fmt.Errorf("failed to read worker node %s/%s: %w", containerID, taskID, err))
	}

	node, err := types.DecodeWorkerNode(entry.Value())
	if err != nil {
		return types.WorkerNode{}, false, err
	}

	return node, true, nil
}

// Watch delivers every version of the record of containerID for taskID.
//
// fn receives the current record first (if any), then each change. A deleted
// record is delivered as a node with no partitions. Undecodable records are
// logged and skipped. fn runs on a watcher goroutine.
func (r *Registry) Watch(ctx context.Context, containerID, taskID string, fn func(types.WorkerNode)) (stop func(), err error) {
	key := r.keys.WorkerNode(containerID, taskID)

	stop, err = watch.Subscribe(ctx, r.kv, key, func(entry jetstream.KeyValueEntry) {
		if entry == nil {
			return
		}

		if entry.Operation() != jetstream.KeyValuePut {
			fn(types.WorkerNode{Container: containerID, Partitions: []string{}})
			return
		}

		node, err := types.DecodeWorkerNode(entry.Value())
		if err != nil {
			r.logger.Warn("skipping undecodable worker node", "key", key, "error", err)
			return
		}
		fn(node)
	})
	if err != nil {
		return nil, natsutil.Classify(err)
	}

	return stop, nil
}

// Delete removes the record of containerID for taskID. Missing records are ignored.
func (r *Registry) Delete(ctx context.Context, containerID, taskID string) error {
	err := r.kv.Delete(ctx, r.keys.WorkerNode(containerID, taskID))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return natsutil.Classify(fmt.Errorf("failed to delete worker node %s/%s: %w", containerID, taskID, err))
	}

	return nil
}

// Containers lists the containers holding a record for taskID.
func (r *Registry) Containers(ctx context.Context, taskID string) ([]string, error) {
	prefix := kvutil.Join(r.keys.Root, "registry", "containers", "task")

	entries, err := watch.Snapshot(ctx, r.kv, kvutil.Join(prefix, "*", taskID))
	if err != nil {
		return nil, natsutil.Classify(err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		rest, ok := kvutil.ChildOf(prefix, trimLastToken(entry.Key()))
		if ok {
			out = append(out, rest)
		}
	}
	slices.Sort(out)

	return out, nil
}

// PruneStale deletes the records of taskID whose container is not in live.
//
// Records of crashed workers are never removed by their owners; the master
// prunes them after a rebalance. Failures are logged and skipped.
func (r *Registry) PruneStale(ctx context.Context, taskID string, live []string) int {
	containers, err := r.Containers(ctx, taskID)
	if err != nil {
		r.logger.Warn("failed to list worker nodes", "task", taskID, "error", err)
		return 0
	}

	pruned := 0
	for _, c := range containers {
		if slices.Contains(live, c) {
			continue
		}
		if err := r.Delete(ctx, c, taskID); err != nil {
			r.logger.Warn("failed to prune stale worker node", "task", taskID, "member", c, "error", err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		r.logger.Info("pruned stale worker nodes", "task", taskID, "count", pruned)
	}

	return pruned
}

// url resolves the URL of member from the group snapshot, falling back to the
// stored record.
func (r *Registry) url(ctx context.Context, taskID, member string) string {
	if r.group != nil {
		for _, m := range r.group.Snapshot() {
			if m.ID != member {
				continue
			}
			if node, err := types.DecodeWorkerNode(m.Payload); err == nil && node.URL != "" {
				return node.URL
			}
		}
	}

	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if node, ok, err := r.Read(readCtx, member, taskID); err == nil && ok {
		return node.URL
	}

	return ""
}

func trimLastToken(key string) string {
	last := kvutil.LastToken(key)
	if len(last) == len(key) {
		return ""
	}

	return key[:len(key)-len(last)-1]
}
