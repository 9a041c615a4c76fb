package fabric

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/group"
	"github.com/arloliu/fabric/internal/hooks"
	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/metrics"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/internal/stableid"
	"github.com/arloliu/fabric/listener"
	"github.com/arloliu/fabric/policy"
	"github.com/arloliu/fabric/types"
	"github.com/arloliu/fabric/worker"
)

const bucketRetries = 5

// TaskManager runs one task on this worker.
//
// It keeps the worker registered in the task's group, lets the group master
// rebalance partitions over the registered workers, and starts or stops
// partitions on the local PartitionListener whenever this worker's own
// assignment record changes.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Store callbacks only enqueue; a single executor goroutine rebalances
//     and applies assignments, so listener calls never overlap
//
// Lifecycle:
//   - Create with NewTaskManager()
//   - Call Start() to join the task group
//   - Call Stop() to leave; a stopped manager cannot be restarted
type TaskManager struct {
	cfg    Config
	conn   *nats.Conn
	js     jetstream.JetStream
	source PartitionSource
	keys   kvutil.Keys

	policy   BalancingPolicy
	listener PartitionListener
	handler  MessageHandler
	hooks    *hooks.Dispatcher
	metrics  MetricsCollector
	logger   Logger

	// baseLogger carries the task id only; logger adds the container id.
	baseLogger Logger

	// group is injected with WithGroup or created by Start.
	group     Group
	ownsGroup bool

	registry *worker.Registry
	claimer  *stableid.Claimer

	memberMu   sync.Mutex
	membership Membership

	state       atomic.Int32 // State
	stateSince  atomic.Int64 // unix nanos of the last transition
	containerID atomic.Value // string

	assignedMu sync.RWMutex
	assigned   []Partition

	// desired is the partition list of the last own record; executor only.
	// It differs from assigned while a failed listener Start awaits retry.
	desired []string

	partitionsMu sync.RWMutex
	partitions   map[string]Partition

	queue          chan message
	runCtx         context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	unwatch        func()
	unsubscribe    func()
	removeListener func()

	// mu serializes Start and Stop.
	mu sync.Mutex
}

type messageKind int

const (
	msgRebalance messageKind = iota
	msgRepublish
	msgAssignment
	msgRetry
)

type message struct {
	kind messageKind
	node WorkerNode
}

// Status is a point-in-time view of a TaskManager.
type Status struct {
	TaskID      string   `json:"taskId"`
	ContainerID string   `json:"containerId"`
	State       string   `json:"state"`
	Master      bool     `json:"master"`
	Connected   bool     `json:"connected"`
	Partitions  []string `json:"partitions"`
	Members     []string `json:"members"`
}

// NewTaskManager creates a TaskManager for cfg.TaskID.
//
// Missing configuration values take defaults. The balancing policy and the
// partition listener are resolved from their type tags unless WithPolicy or
// WithListener override them.
//
// Parameters:
//   - cfg: Task configuration
//   - conn: NATS connection for coordination
//   - source: Partition source of the task
//   - opts: Optional hooks, metrics, logger, policy, listener, group
//
// Returns:
//   - *TaskManager: Manager in StateCreated
//   - error: ErrInvalidConfig, ErrUnknownPolicy or ErrUnknownListener
//
// Example:
//
//	cfg := fabric.DefaultConfig()
//	cfg.TaskID = "orders"
//	src := source.NewStatic(partitions)
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src, fabric.WithLogger(logger))
func NewTaskManager(cfg *Config, conn *nats.Conn, source PartitionSource, opts ...Option) (*TaskManager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}
	if source == nil {
		return nil, ErrPartitionSourceRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := logging.With(logging.OrNop(options.logger), "task", cfg.TaskID)
	cfg.ValidateWithWarnings(logger)

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	m := &TaskManager{
		cfg:        *cfg,
		conn:       conn,
		js:         js,
		source:     source,
		keys:       kvutil.Keys{Root: cfg.Root},
		listener:   options.listener,
		handler:    options.handler,
		hooks:      hooks.NewDispatcher(options.hooks, logger),
		metrics:    metrics.OrNop(options.metrics),
		logger:     logger,
		baseLogger: logger,
		group:      options.group,
		partitions: make(map[string]Partition),
	}

	writer := assignmentWriter{m: m}
	if options.policy != nil {
		m.policy = options.policy(writer, logger)
	} else {
		m.policy, err = policy.New(cfg.Policy, writer, logger)
		if err != nil {
			return nil, err
		}
	}

	if m.listener == nil && !slices.Contains(listener.Types(), cfg.Listener.Type) {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownListener, cfg.Listener.Type, listener.Types())
	}

	m.state.Store(int32(StateCreated))
	m.stateSince.Store(time.Now().UnixNano())
	m.containerID.Store(cfg.ContainerID)

	return m, nil
}

// Start joins the task group and begins reacting to changes.
//
// On failure every step taken so far is undone and the manager stays in
// StateCreated, so the caller may retry once the store is reachable.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrStopped, or a startup error (store
//     failures wrap ErrConnectivity)
func (m *TaskManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()

	if err := m.start(startCtx); err != nil {
		err = natsutil.ClassifyConn(m.conn, err)
		m.logger.Error("failed to start task manager", "error", err)

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
		defer cleanupCancel()
		m.teardown(cleanupCtx, false)
		m.hooks.Error(ctx, err)

		return err
	}

	m.transitionState(StateCreated, StateStarted)
	m.submitRebalance()

	return nil
}

func (m *TaskManager) start(ctx context.Context) error {
	registryKV, err := kvutil.EnsureBucket(ctx, m.js, kvutil.RegistryBucket(m.cfg.KVBuckets.Registry), bucketRetries)
	if err != nil {
		return fmt.Errorf("failed to open registry bucket: %w", err)
	}

	membershipKV, err := kvutil.EnsureBucket(ctx, m.js,
		kvutil.MembershipBucket(m.cfg.KVBuckets.Membership, m.cfg.MembershipTTL), bucketRetries)
	if err != nil {
		return fmt.Errorf("failed to open membership bucket: %w", err)
	}

	containerID, err := m.resolveContainerID(ctx)
	if err != nil {
		return err
	}
	m.containerID.Store(containerID)
	m.logger = logging.With(m.baseLogger, "member", containerID)

	if m.group == nil || m.ownsGroup {
		m.group = group.New(membershipKV, m.keys.TaskGroup(m.cfg.TaskID), group.Config{
			TTL:             m.cfg.MembershipTTL,
			RefreshInterval: m.cfg.RefreshInterval,
			PollInterval:    m.cfg.PollInterval,
		}, group.WithLogger(m.logger), group.WithMetrics(m.metrics), group.WithConn(m.conn))
		m.ownsGroup = true
	}
	m.registry = worker.NewRegistry(registryKV, m.keys, m.group, m.logger, m.metrics)

	if m.listener == nil {
		m.listener, err = listener.New(m.cfg.Listener.Type, listener.Deps{
			JetStream: m.js,
			WorkerID:  containerID,
			Template:  m.cfg.Listener.Template,
			Consumer:  m.cfg.Listener.Consumer,
			Handler:   m.handler,
			Logger:    m.logger,
		})
		if err != nil {
			return err
		}
	}

	own := m.ownNode()
	if err := m.registry.Publish(ctx, m.cfg.TaskID, own); err != nil {
		return err
	}

	m.runCtx, m.cancel = context.WithCancel(context.Background())
	m.queue = make(chan message, m.cfg.QueueSize)
	m.wg.Add(1)
	go m.run(m.runCtx)

	m.unwatch, err = m.registry.Watch(m.runCtx, containerID, m.cfg.TaskID, m.onOwnRecord)
	if err != nil {
		return fmt.Errorf("failed to watch own worker node: %w", err)
	}

	m.unsubscribe, err = m.source.Subscribe(m.runCtx, m.onPartitionEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to partition source: %w", err)
	}

	if err := m.group.Start(m.runCtx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		return fmt.Errorf("failed to start group: %w", err)
	}
	m.removeListener = m.group.AddListener(types.GroupListenerFunc(m.onGroupEvent))

	payload, err := own.Encode()
	if err != nil {
		return err
	}
	membership, err := m.group.Join(ctx, containerID, payload)
	if err != nil {
		return fmt.Errorf("failed to join task group: %w", err)
	}
	m.setMembership(membership)

	return nil
}

// resolveContainerID returns the configured container id, or claims one from
// the stable id pool.
func (m *TaskManager) resolveContainerID(ctx context.Context) (string, error) {
	if m.cfg.ContainerID != "" {
		return m.cfg.ContainerID, nil
	}
	idsKV, err := kvutil.EnsureBucket(ctx, m.js,
		kvutil.MembershipBucket(m.cfg.KVBuckets.ContainerIDs, m.cfg.ContainerIDs.TTL), bucketRetries)
	if err != nil {
		return "", fmt.Errorf("failed to open container id bucket: %w", err)
	}

	pool := m.cfg.ContainerIDs
	m.claimer = stableid.NewClaimer(idsKV, m.keys.ContainerIDs(), pool.Prefix, pool.Min, pool.Max,
		pool.TTL, uuid.NewString(), m.logger)

	id, err := m.claimer.Claim(ctx)
	if err != nil {
		m.claimer = nil
		return "", fmt.Errorf("failed to claim container id: %w", err)
	}
	if err := m.claimer.StartRenewal(); err != nil {
		return "", fmt.Errorf("failed to start container id renewal: %w", err)
	}
	m.logger.Info("claimed container id", "container", id)

	return id, nil
}

// Stop leaves the task group and releases the partition listener.
//
// Queued rebalances are discarded. The context bounds the store cleanup; when
// it has no deadline Config.ShutdownTimeout applies.
//
// Returns:
//   - error: ErrNotStarted if the manager is not running
func (m *TaskManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateStarted {
		return ErrNotStarted
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := m.teardown(ctx, true)
	m.transitionState(StateStarted, StateStopped)
	m.logger.Info("task manager stopped")

	return err
}

// teardown undoes start. It is used by Stop and by a failed Start; only Stop
// destroys the listener.
func (m *TaskManager) teardown(ctx context.Context, destroy bool) error {
	var errs []error

	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.removeListener != nil {
		m.removeListener()
		m.removeListener = nil
	}

	if membership := m.setMembership(nil); membership != nil {
		if err := m.group.Leave(ctx, membership); err != nil {
			m.logger.Warn("failed to leave task group", "error", err)
			errs = append(errs, err)
		}
	}
	if m.ownsGroup {
		if err := m.group.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
			m.logger.Warn("failed to stop task group", "error", err)
		}
	}

	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		m.cancel = nil
	}

	switch {
	case destroy && m.listener != nil:
		if err := m.listener.Destroy(ctx); err != nil {
			m.logger.Warn("failed to destroy partition listener", "error", err)
			errs = append(errs, err)
		}
	case m.listener != nil:
		if started := m.assignedPartitions(); len(started) > 0 {
			if err := m.listener.Stop(ctx, m.cfg.TaskID, m.cfg.Definition, started); err != nil {
				m.logger.Warn("failed to stop partitions", "partitions", PartitionIDs(started), "error", err)
			}
		}
	}
	m.setAssigned(nil)
	m.desired = nil

	if m.registry != nil {
		if id := m.ContainerID(); id != "" {
			if err := m.registry.Delete(ctx, id, m.cfg.TaskID); err != nil {
				m.logger.Warn("failed to delete own worker node", "error", err)
				errs = append(errs, err)
			}
		}
	}

	if m.claimer != nil {
		if err := m.claimer.Release(ctx); err != nil && !errors.Is(err, stableid.ErrNotClaimed) {
			m.logger.Warn("failed to release container id", "error", err)
			errs = append(errs, err)
		}
		m.claimer = nil
		m.containerID.Store(m.cfg.ContainerID)
	}

	m.hooks.Wait()

	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (m *TaskManager) State() State {
	return State(m.state.Load())
}

// ContainerID returns this worker's container id (empty before a pool id is claimed).
func (m *TaskManager) ContainerID() string {
	if id, ok := m.containerID.Load().(string); ok {
		return id
	}

	return ""
}

// IsMaster reports whether this worker currently masters the task group.
func (m *TaskManager) IsMaster() bool {
	if m.State() != StateStarted {
		return false
	}

	return m.group.IsMaster()
}

// AssignedPartitions returns the ids of the partitions started on this worker.
func (m *TaskManager) AssignedPartitions() []string {
	m.assignedMu.RLock()
	defer m.assignedMu.RUnlock()

	return PartitionIDs(m.assigned)
}

// Status returns a point-in-time view of the manager.
func (m *TaskManager) Status() Status {
	st := Status{
		TaskID:      m.cfg.TaskID,
		ContainerID: m.ContainerID(),
		State:       m.State().String(),
		Partitions:  m.AssignedPartitions(),
		Members:     []string{},
	}
	if m.State() == StateStarted {
		st.Master = m.group.IsMaster()
		st.Connected = m.group.IsConnected()
		st.Members = types.MemberIDs(m.group.Snapshot())
	}

	return st
}

// PartitionIDs extracts partition IDs preserving input order.
func PartitionIDs(partitions []Partition) []string {
	return types.PartitionIDs(partitions)
}

// transitionState records a state change and fires OnStateChanged.
func (m *TaskManager) transitionState(from, to State) {
	m.state.Store(int32(to)) //nolint:gosec // State values are a controlled enum

	now := time.Now()
	since := time.Unix(0, m.stateSince.Swap(now.UnixNano()))

	m.logger.Info("state transition", "from", from.String(), "to", to.String())
	m.metrics.RecordStateTransition(m.cfg.TaskID, from, to, now.Sub(since).Seconds())
	m.hooks.StateChanged(context.Background(), from, to)
}

func (m *TaskManager) ownNode() WorkerNode {
	return WorkerNode{Container: m.ContainerID(), URL: m.cfg.URL, Partitions: []string{}}
}

func (m *TaskManager) currentMembership() Membership {
	m.memberMu.Lock()
	defer m.memberMu.Unlock()

	return m.membership
}

// setMembership replaces the membership handle and returns the previous one.
func (m *TaskManager) setMembership(membership Membership) Membership {
	m.memberMu.Lock()
	defer m.memberMu.Unlock()

	prev := m.membership
	m.membership = membership

	return prev
}

func (m *TaskManager) assignedPartitions() []Partition {
	m.assignedMu.RLock()
	defer m.assignedMu.RUnlock()

	return slices.Clone(m.assigned)
}

func (m *TaskManager) setAssigned(partitions []Partition) {
	m.assignedMu.Lock()
	m.assigned = partitions
	m.assignedMu.Unlock()

	m.metrics.RecordAssignedPartitions(m.cfg.TaskID, len(partitions))
}

// assignmentWriter lets the policy write through the registry created by Start.
type assignmentWriter struct {
	m *TaskManager
}

func (w assignmentWriter) WriteAssignment(ctx context.Context, taskID, member string, partitionIDs []string) error {
	if w.m.registry == nil {
		return fmt.Errorf("%w: registry not open", types.ErrAssignmentWrite)
	}

	return w.m.registry.WriteAssignment(ctx, taskID, member, partitionIDs)
}
