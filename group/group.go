package group

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/fabric/internal/election"
	"github.com/arloliu/fabric/internal/heartbeat"
	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/internal/metrics"
	"github.com/arloliu/fabric/internal/natsutil"
	"github.com/arloliu/fabric/internal/watch"
	"github.com/arloliu/fabric/types"
)

// NATSGroup is a types.Group backed by a NATS KV TTL bucket.
type NATSGroup struct {
	kv      jetstream.KeyValue
	conn    *nats.Conn
	name    string
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	monitor *watch.Monitor

	listeners  *xsync.Map[uint64, types.GroupListener]
	listenerID atomic.Uint64

	mu          sync.Mutex
	memberships map[string]*membership
	snapshot    []types.Member
	synced      bool
	connected   bool
	master      bool
}

var _ types.Group = (*NATSGroup)(nil)

// membership is the handle returned by Join.
type membership struct {
	id        string
	session   string
	publisher *heartbeat.Publisher
	election  *election.NATSElection
}

func (m *membership) MemberID() string { return m.id }
func (m *membership) Session() string  { return m.session }

// New creates a group named by the key prefix name.
//
// Parameters:
//   - kv: Membership bucket; its TTL must equal cfg.TTL
//   - name: Group key prefix (e.g., kvutil.Keys{Root: "fabric"}.TaskGroup("orders"))
//   - cfg: Timing parameters, zero fields take defaults
//   - opts: Optional logger and metrics
func New(kv jetstream.KeyValue, name string, cfg Config, opts ...Option) *NATSGroup {
	cfg.setDefaults()

	g := &NATSGroup{
		kv:          kv,
		name:        name,
		cfg:         cfg,
		listeners:   xsync.NewMap[uint64, types.GroupListener](),
		memberships: make(map[string]*membership),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.With(logging.OrNop(g.logger), "group", name)
	g.metrics = metrics.OrNop(g.metrics)
	g.monitor = watch.NewMonitor(kv, kvutil.GroupPattern(name), cfg.PollInterval, g.check, g.logger)

	return g
}

// Name returns the group key prefix.
func (g *NATSGroup) Name() string {
	return g.name
}

// Start begins observing the group.
//
// The first successful snapshot delivers GroupConnected followed by GroupChanged.
func (g *NATSGroup) Start(ctx context.Context) error {
	return g.monitor.Start(ctx)
}

// Stop stops observing the group. Memberships stay registered until Leave.
func (g *NATSGroup) Stop() error {
	return g.monitor.Stop()
}

// Join registers member id with payload and starts keeping it alive.
//
// Returns:
//   - types.Membership: Handle for Update and Leave
//   - error: types.ErrInvalidID, types.ErrMemberExists when a live registration
//     holds the id, or a store error wrapping types.ErrConnectivity
func (g *NATSGroup) Join(ctx context.Context, id string, payload []byte) (types.Membership, error) {
	if err := types.ValidateID(id); err != nil {
		return nil, err
	}

	session := uuid.NewString()
	m := &membership{
		id:      id,
		session: session,
		publisher: heartbeat.New(g.kv, kvutil.MemberKey(g.name, id), types.Member{
			ID:      id,
			Session: session,
			Payload: payload,
		}, g.cfg.RefreshInterval),
		election: election.NewNATSElection(g.kv, kvutil.LeaderKey(g.name), session),
	}
	m.publisher.SetMetrics(g.metrics, g.name)
	m.publisher.SetOnResult(func(err error) { g.afterRefresh(m, err) })

	if err := m.publisher.Start(ctx); err != nil {
		err = natsutil.ClassifyConn(g.conn, err)
		if errors.Is(err, types.ErrConnectivity) {
			g.monitor.Trigger()
		}

		return nil, err
	}

	g.mu.Lock()
	g.memberships[session] = m
	g.mu.Unlock()

	g.logger.Info("joined group", "member", id, "session", session)
	g.campaign(ctx, m)
	g.monitor.Trigger()

	return m, nil
}

// Leave releases mastership, stops refreshing and deletes the registration.
//
// Leaving an unknown or already released handle is a no-op.
func (g *NATSGroup) Leave(ctx context.Context, handle types.Membership) error {
	m := g.take(handle)
	if m == nil {
		return nil
	}

	if err := m.election.ReleaseLeadership(ctx); err != nil && !errors.Is(err, election.ErrNotLeader) {
		g.logger.Warn("failed to release mastership", "member", m.id, "error", err)
	}

	err := m.publisher.Stop()
	if errors.Is(err, heartbeat.ErrNotStarted) {
		err = nil
	}
	g.monitor.Trigger()

	if err != nil {
		return natsutil.ClassifyConn(g.conn, fmt.Errorf("failed to leave group as %s: %w", m.id, err))
	}
	g.logger.Info("left group", "member", m.id)

	return nil
}

// Update replaces the payload of a joined member.
//
// The write is synchronous; listeners observe it on the next snapshot.
func (g *NATSGroup) Update(ctx context.Context, handle types.Membership, payload []byte) error {
	m := g.lookup(handle)
	if m == nil {
		return fmt.Errorf("%w: %s", types.ErrNotJoined, memberID(handle))
	}

	if err := m.publisher.Update(ctx, payload); err != nil {
		return natsutil.ClassifyConn(g.conn, fmt.Errorf("failed to update member %s: %w", m.id, err))
	}
	g.monitor.Trigger()

	return nil
}

// Members reads the current members from the store.
//
// Members are ordered by join time, then by id. Undecodable registrations are
// skipped.
func (g *NATSGroup) Members(ctx context.Context) ([]types.Member, error) {
	members, _, err := g.read(ctx)
	return members, natsutil.ClassifyConn(g.conn, err)
}

// Snapshot returns the members delivered with the last GroupChanged.
func (g *NATSGroup) Snapshot() []types.Member {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.snapshot)
}

// AddListener registers l and returns a function removing it.
func (g *NATSGroup) AddListener(l types.GroupListener) func() {
	id := g.listenerID.Add(1)
	g.listeners.Store(id, l)

	return func() {
		g.listeners.Delete(id)
	}
}

// IsMaster reports whether one of this process's memberships holds the
// mastership lease.
func (g *NATSGroup) IsMaster() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, m := range g.memberships {
		if m.election.Held() {
			return true
		}
	}

	return false
}

// IsConnected reports whether the last snapshot read succeeded.
func (g *NATSGroup) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.connected
}

// check is the monitor callback: it reads a snapshot, campaigns for a vacant
// mastership and delivers the resulting events.
//
// Each check is bounded by CheckTimeout; reads block while the client
// reconnects, so an unanswered read is how an outage shows up.
func (g *NATSGroup) check(runCtx context.Context) error {
	ctx, cancel := context.WithTimeout(runCtx, g.cfg.CheckTimeout)
	defer cancel()

	members, leader, err := g.read(ctx)
	if err != nil {
		err = natsutil.ClassifyTimeout(runCtx, natsutil.ClassifyConn(g.conn, err))
		if errors.Is(err, types.ErrConnectivity) {
			g.setConnected(false)
		}

		return err
	}
	g.setConnected(true)

	if leader == nil {
		for _, m := range g.joined() {
			if g.campaign(ctx, m) {
				break
			}
		}
	} else {
		g.reconcileLease(*leader)
	}

	isMaster := g.IsMaster()

	g.mu.Lock()
	changed := !g.synced || !sameMembers(g.snapshot, members) || g.master != isMaster
	masterChanged := g.synced && g.master != isMaster
	g.synced = true
	g.snapshot = members
	g.master = isMaster
	g.mu.Unlock()

	if masterChanged {
		g.metrics.RecordMastershipChange(g.name, isMaster)
		g.logger.Info("mastership changed", "master", isMaster)
	}
	if changed {
		g.metrics.RecordGroupMembers(g.name, len(members))
		g.fire(types.GroupChanged)
	}

	return nil
}

// read returns the members and the current lease, if any.
func (g *NATSGroup) read(ctx context.Context) ([]types.Member, *election.Lease, error) {
	entries, err := watch.Snapshot(ctx, g.kv, kvutil.GroupPattern(g.name))
	if err != nil {
		return nil, nil, natsutil.Classify(fmt.Errorf("failed to read group %s: %w", g.name, err))
	}

	membersPrefix := kvutil.Join(g.name, "members")
	leaderKey := kvutil.LeaderKey(g.name)

	var (
		members []types.Member
		leader  *election.Lease
	)
	for _, entry := range entries {
		if entry.Key() == leaderKey {
			var lease election.Lease
			if err := json.Unmarshal(entry.Value(), &lease); err == nil {
				leader = &lease
			}

			continue
		}
		if _, ok := kvutil.ChildOf(membersPrefix, entry.Key()); !ok {
			continue
		}

		var m types.Member
		if err := json.Unmarshal(entry.Value(), &m); err != nil {
			g.logger.Warn("skipping undecodable member", "key", entry.Key(), "error", err)
			continue
		}
		members = append(members, m)
	}

	slices.SortFunc(members, func(a, b types.Member) int {
		if c := a.Joined.Compare(b.Joined); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return members, leader, nil
}

// campaign requests mastership for m and reports whether it is held.
func (g *NATSGroup) campaign(ctx context.Context, m *membership) bool {
	leaseSeconds := int64(g.cfg.TTL / time.Second)
	if leaseSeconds < 1 {
		leaseSeconds = 1
	}

	held, err := m.election.RequestLeadership(ctx, m.id, leaseSeconds)
	if err != nil {
		g.logger.Debug("mastership request failed", "member", m.id, "error", err)
		return false
	}

	return held
}

// reconcileLease drops local mastership claims contradicted by the stored lease.
func (g *NATSGroup) reconcileLease(lease election.Lease) {
	for _, m := range g.joined() {
		if m.election.Held() && lease.Session != m.session {
			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RefreshInterval)
			if _, err := m.election.IsLeader(ctx); err != nil {
				g.logger.Debug("mastership check failed", "member", m.id, "error", err)
			}
			cancel()
		}
	}
}

// afterRefresh runs on a member's publisher goroutine after each refresh.
func (g *NATSGroup) afterRefresh(m *membership, err error) {
	if err != nil {
		g.logger.Warn("membership refresh failed", "member", m.id, "error", err)
		g.monitor.Trigger()

		return
	}
	if !m.election.Held() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RefreshInterval)
	defer cancel()

	if !g.campaign(ctx, m) {
		g.logger.Warn("mastership lost", "member", m.id)
		g.monitor.Trigger()
	}
}

func (g *NATSGroup) setConnected(connected bool) {
	g.mu.Lock()
	changed := g.connected != connected
	g.connected = connected
	g.mu.Unlock()

	if !changed {
		return
	}

	if connected {
		g.logger.Info("group connected")
		g.fire(types.GroupConnected)
	} else {
		g.logger.Warn("group disconnected")
		g.fire(types.GroupDisconnected)
	}
}

func (g *NATSGroup) fire(event types.GroupEvent) {
	g.metrics.RecordGroupEvent(g.name, event)
	g.listeners.Range(func(_ uint64, l types.GroupListener) bool {
		g.notify(l, event)
		return true
	})
}

func (g *NATSGroup) notify(l types.GroupListener, event types.GroupEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("group listener panicked", "event", event.String(), "panic", r)
		}
	}()

	l.OnGroupEvent(event)
}

func (g *NATSGroup) joined() []*membership {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*membership, 0, len(g.memberships))
	for _, m := range g.memberships {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *membership) int { return strings.Compare(a.id, b.id) })

	return out
}

func (g *NATSGroup) lookup(handle types.Membership) *membership {
	if handle == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.memberships[handle.Session()]
}

func (g *NATSGroup) take(handle types.Membership) *membership {
	if handle == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	m := g.memberships[handle.Session()]
	delete(g.memberships, handle.Session())

	return m
}

func memberID(handle types.Membership) string {
	if handle == nil {
		return "<nil>"
	}

	return handle.MemberID()
}

func sameMembers(a, b []types.Member) bool {
	return slices.EqualFunc(a, b, func(x, y types.Member) bool {
		return x.ID == y.ID && x.Session == y.Session && bytes.Equal(x.Payload, y.Payload)
	})
}
