package fabric

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/arloliu/fabric/types"
)

// run is the executor loop. It exits when the manager context is cancelled,
// discarding whatever is still queued.
func (m *TaskManager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			switch msg.kind {
			case msgRebalance:
				m.rebalance(ctx)
			case msgRepublish:
				m.republish(ctx)
			case msgAssignment:
				m.applyAssignment(ctx, msg.node)
			case msgRetry:
				m.reconcile(ctx)
			}
		}
	}
}

// submitRebalance enqueues a rebalance, dropping it when the queue is full.
// A rebalance already queued recomputes the same result.
func (m *TaskManager) submitRebalance() {
	m.offer(message{kind: msgRebalance})
}

func (m *TaskManager) submitRepublish() {
	m.offer(message{kind: msgRepublish})
}

func (m *TaskManager) offer(msg message) {
	select {
	case m.queue <- msg:
	default:
		m.metrics.RecordRebalanceDropped(m.cfg.TaskID)
		m.logger.Debug("executor queue full, dropping request", "kind", msg.kind)
	}
}

// submitAssignment enqueues an own-record change. It blocks until the message
// is queued or the manager stops, so no assignment is ever lost.
func (m *TaskManager) submitAssignment(node WorkerNode) {
	select {
	case m.queue <- message{kind: msgAssignment, node: node}:
	case <-m.runCtx.Done():
	}
}

func (m *TaskManager) onOwnRecord(node WorkerNode) {
	m.submitAssignment(node)
}

func (m *TaskManager) onPartitionEvent(event PartitionEvent) {
	m.logger.Debug("partition event", "type", event.Type.String(), "partition", event.PartitionID)
	m.submitRebalance()
}

// onGroupEvent reacts to task group events. On GroupChanged the own node is
// republished only when this worker is missing from the snapshot, since a
// listed registration already carries the current payload.
func (m *TaskManager) onGroupEvent(event GroupEvent) {
	switch event {
	case GroupChanged:
		if !slices.Contains(types.MemberIDs(m.group.Snapshot()), m.ContainerID()) {
			m.submitRepublish()
		}
		if m.group.IsMaster() {
			m.submitRebalance()
		}
	case GroupConnected:
		m.submitRepublish()
		m.submitRebalance()
	case GroupDisconnected:
		m.logger.Warn("task group disconnected, keeping current assignment")
	}
}

// rebalance recomputes the assignment of every member. Only the master
// writes; everyone else ignores the request.
func (m *TaskManager) rebalance(ctx context.Context) {
	if !m.group.IsMaster() {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	partitions, err := m.source.ListPartitions(ctx)
	if err != nil {
		m.rebalanceFailed(ctx, "failed to list partitions", err)
		return
	}
	m.cachePartitions(partitions)

	members, err := m.group.Members(ctx)
	if err != nil {
		m.rebalanceFailed(ctx, "failed to read task group members", err)
		return
	}

	partitionIDs := PartitionIDs(partitions)
	memberIDs := types.MemberIDs(members)
	if !m.cfg.PreserveEnumerationOrder {
		slices.Sort(partitionIDs)
		slices.Sort(memberIDs)
	}

	err = m.policy.Rebalance(ctx, m.cfg.TaskID, partitionIDs, memberIDs)
	m.metrics.RecordRebalanceDuration(m.cfg.TaskID, time.Since(start).Seconds())
	m.metrics.RecordPartitionCount(m.cfg.TaskID, len(partitionIDs))
	if err != nil {
		m.rebalanceFailed(ctx, "rebalance finished with errors", err)
	} else {
		m.metrics.RecordRebalanceAttempt(m.cfg.TaskID, true)
		m.logger.Info("rebalanced task",
			"policy", m.policy.Type(),
			"partitions", len(partitionIDs),
			"members", len(memberIDs),
			"duration", time.Since(start),
		)
	}

	if len(memberIDs) > 0 {
		m.registry.PruneStale(ctx, m.cfg.TaskID, memberIDs)
	}
}

func (m *TaskManager) rebalanceFailed(ctx context.Context, msg string, err error) {
	m.metrics.RecordRebalanceAttempt(m.cfg.TaskID, false)
	m.logger.Warn(msg, "error", err)
	m.hooks.Error(m.runCtx, err)
}

// republish makes sure this worker is registered in the task group, joining
// again when the previous registration is gone.
func (m *TaskManager) republish(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	payload, err := m.ownNode().Encode()
	if err != nil {
		m.logger.Error("failed to encode own worker node", "error", err)
		return
	}

	if m.State() != StateStarted {
		return
	}

	if membership := m.currentMembership(); membership != nil {
		err = m.group.Update(ctx, membership, payload)
		if err == nil || !errors.Is(err, ErrNotJoined) {
			if err != nil {
				m.logger.Warn("failed to republish own worker node", "error", err)
			}

			return
		}
	}

	membership, err := m.group.Join(ctx, m.ContainerID(), payload)
	if err != nil {
		m.logger.Warn("failed to rejoin task group", "error", err)
		return
	}
	m.setMembership(membership)
	m.logger.Info("rejoined task group")
}

// applyAssignment records node as the desired assignment and reconciles the
// listener with it.
func (m *TaskManager) applyAssignment(ctx context.Context, node WorkerNode) {
	m.desired = slices.Clone(node.Partitions)
	m.reconcile(ctx)
}

// reconcile stops partitions no longer desired and starts missing ones.
//
// Partitions whose Start failed are not recorded as assigned, so the next
// reconcile starts them again; a retry is scheduled after RefreshInterval.
func (m *TaskManager) reconcile(ctx context.Context) {
	current := m.assignedPartitions()
	added, removed := types.Diff(PartitionIDs(current), m.desired)
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	byID := make(map[string]Partition, len(current))
	for _, p := range current {
		byID[p.ID] = p
	}

	if len(removed) > 0 {
		stopping := make([]Partition, 0, len(removed))
		for _, id := range removed {
			stopping = append(stopping, byID[id])
			delete(byID, id)
		}
		if err := m.listener.Stop(ctx, m.cfg.TaskID, m.cfg.Definition, stopping); err != nil {
			m.logger.Error("failed to stop partitions", "partitions", removed, "error", err)
			m.hooks.Error(m.runCtx, err)
		}
	}

	started := added
	if len(added) > 0 {
		data := m.partitionData(ctx)
		starting := make([]Partition, 0, len(added))
		for _, id := range added {
			p, ok := data[id]
			if !ok {
				m.logger.Warn("no data for assigned partition, using empty data", "partition", id)
				p = Partition{ID: id}
			}
			starting = append(starting, p.WithData())
		}
		if err := m.listener.Start(ctx, m.cfg.TaskID, m.cfg.Definition, starting); err != nil {
			m.logger.Error("failed to start partitions, will retry", "partitions", added, "error", err)
			m.hooks.Error(m.runCtx, err)
			m.scheduleRetry()
			started = nil
		} else {
			for _, p := range starting {
				byID[p.ID] = p
			}
		}
	}

	next := make([]Partition, 0, len(m.desired))
	for _, id := range m.desired {
		if p, ok := byID[id]; ok {
			next = append(next, p)
			delete(byID, id)
		}
	}
	m.setAssigned(next)

	if len(started) == 0 && len(removed) == 0 {
		return
	}
	m.logger.Info("assignment changed", "added", started, "removed", removed, "assigned", len(next))
	m.metrics.RecordAssignmentChange(m.cfg.TaskID, len(started), len(removed))
	m.hooks.AssignmentChanged(m.runCtx, started, removed)
}

// scheduleRetry queues a reconcile after RefreshInterval. The retry is
// dropped when the queue is full or the manager has stopped.
func (m *TaskManager) scheduleRetry() {
	runCtx, queue := m.runCtx, m.queue
	time.AfterFunc(m.cfg.RefreshInterval, func() {
		if runCtx.Err() != nil {
			return
		}
		select {
		case queue <- message{kind: msgRetry}:
		default:
		}
	})
}

// partitionData lists the source, falling back to the last listing when the
// source is unavailable.
func (m *TaskManager) partitionData(ctx context.Context) map[string]Partition {
	partitions, err := m.source.ListPartitions(ctx)
	if err != nil {
		m.logger.Warn("failed to list partitions, using cached data", "error", err)
	} else {
		m.cachePartitions(partitions)
	}

	m.partitionsMu.RLock()
	defer m.partitionsMu.RUnlock()

	return maps.Clone(m.partitions)
}

func (m *TaskManager) cachePartitions(partitions []Partition) {
	cache := make(map[string]Partition, len(partitions))
	for _, p := range partitions {
		cache[p.ID] = p
	}

	m.partitionsMu.Lock()
	m.partitions = cache
	m.partitionsMu.Unlock()
}
