package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/types"
)

// Common errors for election operations.
var (
	ErrNotLeader       = errors.New("not the leader")
	ErrLeadershipLost  = errors.New("leadership was lost")
	ErrInvalidDuration = errors.New("invalid lease duration")
)

// Lease is the value stored under the mastership key.
type Lease struct {
	Member   string    `json:"member"`
	Session  string    `json:"session"`
	Acquired time.Time `json:"acquired"`
}

// NATSElection elects the master of a group using a NATS KV key.
//
// Uses atomic KV operations:
//   - Create (atomic): Acquire mastership if the key doesn't exist
//   - Update (with revision): Renew mastership while still holding the lease
//   - Delete: Release mastership
//
// The key lives in the group's TTL bucket, so a master that stops renewing
// loses the lease once the bucket TTL elapses.
//
// All fields are protected by mu for thread-safe concurrent access.
type NATSElection struct {
	kv       jetstream.KeyValue
	key      string
	session  string
	mu       sync.RWMutex
	memberID string
	acquired time.Time
	revision uint64
	isLeader bool
}

var _ types.ElectionAgent = (*NATSElection)(nil)

// NewNATSElection creates a new NATS KV-based election agent.
//
// Parameters:
//   - kv: TTL bucket holding the mastership key
//   - key: Mastership key (e.g., kvutil.LeaderKey(group))
//   - session: Session token of the owning process, written into the lease
//
// Returns:
//   - *NATSElection: New election agent instance
func NewNATSElection(kv jetstream.KeyValue, key, session string) *NATSElection {
	return &NATSElection{kv: kv, key: key, session: session}
}

// RequestLeadership attempts to acquire or keep mastership for memberID.
//
// If already master, the lease is renewed. If the key holds a lease written by
// this session (state lost after a failed renewal), it is taken back with an
// update on the observed revision.
//
// Parameters:
//   - ctx: Context for timeout
//   - memberID: The member requesting mastership
//   - leaseDuration: Lease duration in seconds (enforced by the bucket TTL)
//
// Returns:
//   - bool: true if mastership acquired/held, false otherwise
//   - error: Election error or context cancellation
func (e *NATSElection) RequestLeadership(ctx context.Context, memberID string, leaseDuration int64) (bool, error) {
	if leaseDuration <= 0 {
		return false, ErrInvalidDuration
	}

	isLeader, current, _ := e.getLeaderState()
	if isLeader && current == memberID {
		if err := e.RenewLeadership(ctx); err == nil {
			return true, nil
		}
		e.clearLeadership()
	}

	now := time.Now()
	value, err := e.encode(memberID, now)
	if err != nil {
		return false, err
	}

	revision, err := e.kv.Create(ctx, e.key, value)
	if err == nil {
		e.setLeaderState(true, memberID, now, revision)
		return true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("failed to create leader key: %w", err)
	}

	entry, err := e.kv.Get(ctx, e.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get leader key: %w", err)
	}

	lease, err := decodeLease(entry.Value())
	if err != nil || lease.Session != e.session || lease.Member != memberID {
		return false, nil //nolint:nilerr // foreign or unreadable lease means someone else is master
	}

	revision, err = e.kv.Update(ctx, e.key, value, entry.Revision())
	if err != nil {
		return false, nil //nolint:nilerr // lost the race to another candidate
	}
	e.setLeaderState(true, memberID, lease.Acquired, revision)

	return true, nil
}

// RenewLeadership renews the current lease.
//
// Uses Update with revision check to ensure we still hold the lease.
//
// Returns:
//   - error: ErrNotLeader if not the master, ErrLeadershipLost if lost, nil on success
func (e *NATSElection) RenewLeadership(ctx context.Context) error {
	isLeader, memberID, revision := e.getLeaderState()
	if !isLeader {
		return ErrNotLeader
	}

	e.mu.RLock()
	acquired := e.acquired
	e.mu.RUnlock()

	value, err := e.encode(memberID, acquired)
	if err != nil {
		return err
	}

	newRevision, err := e.kv.Update(ctx, e.key, value, revision)
	if err != nil {
		e.clearLeadership()

		return fmt.Errorf("%w: %w", ErrLeadershipLost, err)
	}

	e.mu.Lock()
	e.revision = newRevision
	e.mu.Unlock()

	return nil
}

// ReleaseLeadership voluntarily releases mastership.
//
// Deletes the key (only if it is still ours) to allow immediate fail-over.
func (e *NATSElection) ReleaseLeadership(ctx context.Context) error {
	isLeader, _, revision := e.getLeaderState()
	if !isLeader {
		return ErrNotLeader
	}

	err := e.kv.Delete(ctx, e.key, jetstream.LastRevision(revision))
	e.setLeaderState(false, "", time.Time{}, 0)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete leader key: %w", err)
	}

	return nil
}

// IsLeader checks with the store whether this agent still holds mastership.
func (e *NATSElection) IsLeader(ctx context.Context) (bool, error) {
	isLeader, _, revision := e.getLeaderState()
	if !isLeader {
		return false, nil
	}

	entry, err := e.kv.Get(ctx, e.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			e.clearLeadership()

			return false, nil
		}

		return false, fmt.Errorf("failed to get leader key: %w", err)
	}

	if entry.Revision() != revision {
		e.clearLeadership()

		return false, nil
	}

	return true, nil
}

// Holder reads the current lease from the store.
//
// Returns:
//   - Lease: Current lease (zero value when nobody is master)
//   - error: Read error
func (e *NATSElection) Holder(ctx context.Context) (Lease, error) {
	entry, err := e.kv.Get(ctx, e.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Lease{}, nil
		}

		return Lease{}, fmt.Errorf("failed to get leader key: %w", err)
	}

	return decodeLease(entry.Value())
}

// Held reports the locally known mastership state without a store round trip.
func (e *NATSElection) Held() bool {
	isLeader, _, _ := e.getLeaderState()
	return isLeader
}

// MemberID returns the master's member ID if this agent holds mastership.
func (e *NATSElection) MemberID() string {
	_, memberID, _ := e.getLeaderState()
	return memberID
}

func (e *NATSElection) encode(memberID string, acquired time.Time) ([]byte, error) {
	data, err := json.Marshal(Lease{Member: memberID, Session: e.session, Acquired: acquired})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lease: %w", err)
	}

	return data, nil
}

func decodeLease(data []byte) (Lease, error) {
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return Lease{}, fmt.Errorf("failed to unmarshal lease: %w", err)
	}

	return l, nil
}

func (e *NATSElection) getLeaderState() (isLeader bool, memberID string, revision uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader, e.memberID, e.revision
}

func (e *NATSElection) setLeaderState(isLeader bool, memberID string, acquired time.Time, revision uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isLeader = isLeader
	e.memberID = memberID
	e.acquired = acquired
	e.revision = revision
}

func (e *NATSElection) clearLeadership() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isLeader = false
}
