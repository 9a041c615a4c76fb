package types

import (
	"context"
	"time"
)

// Member is a registered participant of a group.
//
// Members are ephemeral: a member that stops refreshing its registration is
// removed by the coordination store once the membership TTL elapses.
type Member struct {
	// ID is the member identity, unique within its group.
	ID string `json:"id"`

	// Session identifies the process that owns this registration.
	Session string `json:"session"`

	// Joined is the time the registration was created.
	// Group snapshots are ordered by Joined, then by ID.
	Joined time.Time `json:"joined"`

	// Payload is the opaque state published by the member.
	Payload []byte `json:"payload,omitempty"`
}

// MemberPayloads converts a member snapshot into an id → payload map.
func MemberPayloads(members []Member) map[string][]byte {
	out := make(map[string][]byte, len(members))
	for _, m := range members {
		out[m.ID] = m.Payload
	}

	return out
}

// MemberIDs extracts member IDs preserving snapshot order.
func MemberIDs(members []Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	return ids
}

// GroupEvent is a notification delivered to group listeners.
type GroupEvent int

const (
	// GroupConnected is delivered when the group (re)establishes contact with the store.
	GroupConnected GroupEvent = iota

	// GroupDisconnected is delivered when the store becomes unreachable.
	GroupDisconnected

	// GroupChanged is delivered after a new member snapshot, or a mastership change,
	// has been observed.
	GroupChanged
)

// String returns the string representation of the event.
func (e GroupEvent) String() string {
	switch e {
	case GroupConnected:
		return "Connected"
	case GroupDisconnected:
		return "Disconnected"
	case GroupChanged:
		return "Changed"
	default:
		return "Unknown"
	}
}

// GroupListener receives group notifications.
//
// Callbacks run on the group's monitor goroutine. Implementations must return
// quickly and hand any blocking work to their own goroutines.
type GroupListener interface {
	OnGroupEvent(event GroupEvent)
}

// GroupListenerFunc adapts a function to GroupListener.
type GroupListenerFunc func(event GroupEvent)

// OnGroupEvent calls f(event).
func (f GroupListenerFunc) OnGroupEvent(event GroupEvent) {
	f(event)
}

// Membership is the handle of a joined member, returned by Group.Join.
type Membership interface {
	// MemberID returns the member identity.
	MemberID() string

	// Session returns the session token owning the registration.
	Session() string
}

// Group is a named, watched collection of members backed by the coordination store.
//
// All methods taking a context perform network calls and may block or fail
// transiently. Snapshot, IsMaster and IsConnected only read cached state.
type Group interface {
	// Name returns the group name.
	Name() string

	// Start begins observing the group and delivering events to listeners.
	Start(ctx context.Context) error

	// Stop stops observing the group, leaving any membership still held.
	Stop() error

	// Join registers a member with the given payload.
	Join(ctx context.Context, id string, payload []byte) (Membership, error)

	// Leave deregisters a member. Idempotent.
	Leave(ctx context.Context, m Membership) error

	// Update replaces the payload of a joined member.
	Update(ctx context.Context, m Membership, payload []byte) error

	// Members reads a point-in-time member snapshot from the store.
	Members(ctx context.Context) ([]Member, error)

	// Snapshot returns the last snapshot delivered to listeners.
	Snapshot() []Member

	// AddListener registers a listener and returns a function removing it.
	AddListener(l GroupListener) (remove func())

	// IsMaster reports whether this process holds the group's mastership.
	IsMaster() bool

	// IsConnected reports whether the last store interaction succeeded.
	IsConnected() bool
}
