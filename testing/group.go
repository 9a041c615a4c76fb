package testing

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/arloliu/fabric/types"
)

// FakeGroup is an in-memory types.Group for unit tests of group consumers.
//
// Mutations made through SetMembers, SetMaster and SetConnected notify
// listeners synchronously on the calling goroutine.
type FakeGroup struct {
	name string

	mu        sync.Mutex
	members   []types.Member
	master    bool
	connected bool
	nextID    int
	listeners map[int]types.GroupListener
}

var _ types.Group = (*FakeGroup)(nil)

type fakeMembership struct{ id string }

func (m fakeMembership) MemberID() string { return m.id }
func (m fakeMembership) Session() string  { return "fake" }

// NewFakeGroup creates a connected FakeGroup with no members.
func NewFakeGroup(name string) *FakeGroup {
	return &FakeGroup{name: name, connected: true, listeners: make(map[int]types.GroupListener)}
}

// Name returns the group name.
func (g *FakeGroup) Name() string { return g.name }

// Start is a no-op.
func (g *FakeGroup) Start(context.Context) error { return nil }

// Stop is a no-op.
func (g *FakeGroup) Stop() error { return nil }

// Join appends a member and fires GroupChanged.
func (g *FakeGroup) Join(_ context.Context, id string, payload []byte) (types.Membership, error) {
	g.mu.Lock()
	for _, m := range g.members {
		if m.ID == id {
			g.mu.Unlock()
			return nil, types.ErrMemberExists
		}
	}
	g.members = append(g.members, types.Member{ID: id, Payload: payload})
	g.mu.Unlock()

	g.Fire(types.GroupChanged)

	return fakeMembership{id: id}, nil
}

// Leave removes the member and fires GroupChanged.
func (g *FakeGroup) Leave(_ context.Context, m types.Membership) error {
	g.mu.Lock()
	g.members = slices.DeleteFunc(g.members, func(x types.Member) bool { return x.ID == m.MemberID() })
	g.mu.Unlock()

	g.Fire(types.GroupChanged)

	return nil
}

// Update replaces the member payload and fires GroupChanged.
func (g *FakeGroup) Update(_ context.Context, m types.Membership, payload []byte) error {
	g.mu.Lock()
	idx := slices.IndexFunc(g.members, func(x types.Member) bool { return x.ID == m.MemberID() })
	if idx < 0 {
		g.mu.Unlock()
		return types.ErrNotJoined
	}
	g.members[idx].Payload = payload
	g.mu.Unlock()

	g.Fire(types.GroupChanged)

	return nil
}

// Members returns the current members.
func (g *FakeGroup) Members(context.Context) ([]types.Member, error) {
	return g.Snapshot(), nil
}

// Snapshot returns the current members.
func (g *FakeGroup) Snapshot() []types.Member {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.members)
}

// AddListener registers l.
func (g *FakeGroup) AddListener(l types.GroupListener) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// IsMaster returns the value set by SetMaster.
func (g *FakeGroup) IsMaster() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.master
}

// IsConnected returns the value set by SetConnected.
func (g *FakeGroup) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.connected
}

// SetMembers replaces the member list with members carrying the given payloads,
// in order, and fires GroupChanged.
func (g *FakeGroup) SetMembers(payloads ...string) {
	members := make([]types.Member, len(payloads))
	for i, p := range payloads {
		members[i] = types.Member{ID: "m" + strconv.Itoa(i), Payload: []byte(p)}
	}

	g.mu.Lock()
	g.members = members
	g.mu.Unlock()

	g.Fire(types.GroupChanged)
}

// SetMaster sets mastership and fires GroupChanged.
func (g *FakeGroup) SetMaster(master bool) {
	g.mu.Lock()
	g.master = master
	g.mu.Unlock()

	g.Fire(types.GroupChanged)
}

// SetConnected sets connectivity and fires GroupConnected or GroupDisconnected.
func (g *FakeGroup) SetConnected(connected bool) {
	g.mu.Lock()
	g.connected = connected
	g.mu.Unlock()

	if connected {
		g.Fire(types.GroupConnected)
	} else {
		g.Fire(types.GroupDisconnected)
	}
}

// ListenerCount returns the number of registered listeners.
func (g *FakeGroup) ListenerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.listeners)
}

// Fire delivers event to every listener.
func (g *FakeGroup) Fire(event types.GroupEvent) {
	g.mu.Lock()
	ls := make([]types.GroupListener, 0, len(g.listeners))
	for _, l := range g.listeners {
		ls = append(ls, l)
	}
	g.mu.Unlock()

	for _, l := range ls {
		l.OnGroupEvent(event)
	}
}
